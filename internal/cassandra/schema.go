package cassandra

import "fmt"

const createKeyspace = `CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {
	'class': 'SimpleStrategy',
	'replication_factor': 1
}`

// Table DDL. The message partition is clustered newest-first so range reads
// come back in reverse chronological order, and conversations_by_user mirrors
// that for the per-participant view. counters is a plain bigint row driven by
// lightweight transactions, not a Cassandra COUNTER column, because reserved
// values must be readable in the same conditional statement that claims them.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT,
		value BIGINT,
		PRIMARY KEY (name)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		user_low BIGINT,
		user_high BIGINT,
		conversation_id BIGINT,
		created_at TIMESTAMP,
		PRIMARY KEY ((user_low, user_high))
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_summaries (
		conversation_id BIGINT,
		sender_id BIGINT,
		receiver_id BIGINT,
		last_at TIMESTAMP,
		last_message TEXT,
		PRIMARY KEY (conversation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations_by_user (
		user_id BIGINT,
		last_at TIMESTAMP,
		conversation_id BIGINT,
		sender_id BIGINT,
		receiver_id BIGINT,
		last_message TEXT,
		PRIMARY KEY (user_id, last_at, conversation_id)
	) WITH CLUSTERING ORDER BY (last_at DESC, conversation_id ASC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id BIGINT,
		at TIMESTAMP,
		message_id BIGINT,
		sender_id BIGINT,
		receiver_id BIGINT,
		content TEXT,
		PRIMARY KEY (conversation_id, at, message_id)
	) WITH CLUSTERING ORDER BY (at DESC, message_id ASC)`,
}

func (s *Session) ensureTables() error {
	for _, ddl := range tables {
		if err := s.session.Query(ddl).Exec(); err != nil {
			return fmt.Errorf("ensure tables: %w", wrapErr(err))
		}
	}
	return nil
}
