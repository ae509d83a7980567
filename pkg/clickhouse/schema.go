package clickhouse

import "fmt"

// Schema returns the DDL for the tick, analytics and alert tables in db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ticks (
			ts DateTime64(3, 'UTC'),
			symbol LowCardinality(String),
			price Float64,
			volume Float64
		) ENGINE = MergeTree
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.analytics (
			ts DateTime64(3, 'UTC'),
			pair LowCardinality(String),
			hedge_ratio Float64,
			intercept Float64,
			r_squared Float64,
			stale UInt8,
			spread Float64,
			zscore Nullable(Float64),
			rolling_corr Nullable(Float64)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (pair, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
			id String,
			ts DateTime64(3, 'UTC'),
			pair LowCardinality(String),
			zscore Float64,
			spread Float64,
			threshold Float64,
			direction LowCardinality(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY (pair, ts, id)`, db),
	}
}
