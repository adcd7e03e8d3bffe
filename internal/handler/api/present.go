package api

import (
	"encoding"
	"math"
	"reflect"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	moneyPlaces = 2
	ratioPlaces = 6
)

// Number is a rounded float that encodes NaN and infinities as strings.
type Number struct {
	value  float64
	places int32
}

func (n Number) MarshalJSON() ([]byte, error) {
	switch {
	case math.IsNaN(n.value):
		return []byte(`"NaN"`), nil
	case math.IsInf(n.value, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(n.value, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(decimal.NewFromFloat(n.value).Round(n.places).String()), nil
}

// Amount is a money value with its display string in the configured currency.
type Amount struct {
	Value   Number `json:"value"`
	Display string `json:"display,omitempty"`
}

// Presenter turns calculator results into JSON-safe trees. Float fields
// tagged unit:"money" become Amounts, other floats ratio Numbers.
type Presenter struct {
	currency string
}

func NewPresenter(currency string) Presenter {
	currency = strings.ToUpper(currency)
	if money.GetCurrency(currency) == nil {
		currency = money.EUR
	}
	return Presenter{currency: currency}
}

func (p Presenter) money(v float64) Amount {
	a := Amount{Value: Number{value: v, places: moneyPlaces}}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return a
	}
	cur := money.GetCurrency(p.currency)
	factor := decimal.New(1, int32(cur.Fraction))
	minor := decimal.NewFromFloat(v).Mul(factor).Round(0).IntPart()
	a.Display = money.New(minor, p.currency).Display()
	return a
}

func (p Presenter) Present(v any) any {
	return p.value(reflect.ValueOf(v), false)
}

var textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

func (p Presenter) value(v reflect.Value, isMoney bool) any {
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(textMarshaler) && v.Kind() != reflect.Pointer {
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err == nil {
			return string(b)
		}
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return p.value(v.Elem(), isMoney)
	case reflect.Float32, reflect.Float64:
		if isMoney {
			return p.money(v.Float())
		}
		return Number{value: v.Float(), places: ratioPlaces}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return []any{}
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = p.value(v.Index(i), isMoney)
		}
		return out
	case reflect.Struct:
		return p.fields(v)
	default:
		return v.Interface()
	}
}

func (p Presenter) fields(v reflect.Value) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = p.value(v.Field(i), f.Tag.Get("unit") == "money")
	}
	return out
}
