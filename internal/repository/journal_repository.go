package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/domain/repository"
	pkgkafka "FinPWA/pkg/kafka"
)

const journalColumns = "id, ts, method, url, class, strategy, source, status, duration_ms, bytes, version"

// ClickHouseJournal implements JournalStorage for ClickHouse.
type ClickHouseJournal struct {
	db    *sql.DB
	table string
	ttl   time.Duration
}

// NewClickHouseJournal creates ClickHouse journal storage. Rows older than
// ttl are dropped by the table TTL; zero keeps them forever.
func NewClickHouseJournal(db *sql.DB, table string, ttl time.Duration) *ClickHouseJournal {
	return &ClickHouseJournal{db: db, table: table, ttl: ttl}
}

var _ repository.JournalStorage = (*ClickHouseJournal)(nil)

func (s *ClickHouseJournal) schema() string {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	ts DateTime64(3, 'UTC'),
	method LowCardinality(String),
	url String,
	class LowCardinality(String),
	strategy LowCardinality(String),
	source LowCardinality(String),
	status UInt16,
	duration_ms Float64,
	bytes UInt64,
	version LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (class, ts)`, s.table)
	if days := int(s.ttl.Hours() / 24); days > 0 {
		ddl += fmt.Sprintf("\nTTL toDateTime(ts) + INTERVAL %d DAY", days)
	}
	return ddl
}

func (s *ClickHouseJournal) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema()); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseJournal) Store(ctx context.Context, rec *models.FetchRecord) error {
	return s.StoreBatch(ctx, []*models.FetchRecord{rec})
}

// StoreBatch inserts records with multi-row VALUES, 2000 rows per statement.
// Records without an id are skipped.
func (s *ClickHouseJournal) StoreBatch(ctx context.Context, recs []*models.FetchRecord) error {
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))
		q, args := buildInsert(s.table, recs[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", s.table, err)
		}
	}
	return nil
}

func buildInsert(table string, recs []*models.FetchRecord) (string, []interface{}) {
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*11)
	for _, r := range recs {
		if r == nil || r.ID == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.ID,
			r.Time.UTC(),
			r.Method,
			r.URL,
			string(r.Class),
			string(r.Strategy),
			string(r.Source),
			uint16(r.Status),
			float64(r.Duration)/float64(time.Millisecond),
			uint64(r.Bytes),
			r.Version,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, journalColumns, strings.Join(values, ",")), args
}

func buildQuery(table string, q models.JournalQuery) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE ts >= ? AND ts <= ?", journalColumns, table)
	args := []interface{}{q.From.UTC(), q.To.UTC()}
	if q.Class != "" {
		sb.WriteString(" AND class = ?")
		args = append(args, string(q.Class))
	}
	sb.WriteString(" ORDER BY ts DESC LIMIT ?")
	args = append(args, q.Limit)
	return sb.String(), args
}

func (s *ClickHouseJournal) Query(ctx context.Context, q models.JournalQuery) ([]*models.FetchRecord, error) {
	stmt, args := buildQuery(s.table, q)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.FetchRecord
	for rows.Next() {
		var (
			r                       models.FetchRecord
			class, strategy, source string
			status                  uint16
			durationMs              float64
			bytes                   uint64
		)
		if err := rows.Scan(&r.ID, &r.Time, &r.Method, &r.URL, &class, &strategy, &source, &status, &durationMs, &bytes, &r.Version); err != nil {
			return nil, err
		}
		r.Class = models.RequestClass(class)
		r.Strategy = models.Strategy(strategy)
		r.Source = models.Source(source)
		r.Status = int(status)
		r.Duration = time.Duration(durationMs * float64(time.Millisecond))
		r.Bytes = int(bytes)
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *ClickHouseJournal) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseJournal) Close() error {
	return nil // owned by pkg/clickhouse.Client
}

// KafkaJournalPublisher implements JournalPublisher for Kafka.
type KafkaJournalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaJournalPublisher creates Kafka publisher.
func NewKafkaJournalPublisher(producer *pkgkafka.Producer, topic string) *KafkaJournalPublisher {
	return &KafkaJournalPublisher{producer: producer, topic: topic}
}

var _ repository.JournalPublisher = (*KafkaJournalPublisher)(nil)

// Records are keyed by class so one class stays ordered within a partition.
func (p *KafkaJournalPublisher) Publish(ctx context.Context, rec *models.FetchRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Class), rec)
}

func (p *KafkaJournalPublisher) PublishBatch(ctx context.Context, recs []*models.FetchRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Class), Value: r}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaJournalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
