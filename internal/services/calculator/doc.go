// Package calculator holds pure financial formulas.
//
// Rates and confidence levels are percentages (5 means 5%). Return series are
// fractions (0.05 means a 5% period return). Functions that can reject their
// input return a nil pointer instead of an error; numeric edge cases such as
// a zero standard deviation surface as NaN or ±Inf. No function mutates its
// arguments or keeps state between calls.
package calculator
