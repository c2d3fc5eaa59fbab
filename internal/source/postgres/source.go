package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

const (
	endpointsTable = "endpoints"
	rulesTable     = "failover_rules"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Source reads the initial endpoint and rule snapshot from the external
// configuration store. The core never writes back, durable storage is
// not its business.
type Source struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, user, password, addr string, port uint16) (*Source, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=postgres sslmode=disable pool_max_conns=5",
			user, password, addr, port,
		),
	)
	if cfg == nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Source{db: pool}, nil
}

func (s *Source) Close() {
	s.db.Close()
}

func (s *Source) Endpoints(ctx context.Context) ([]failover.ServiceEndpoint, error) {
	sql, args, err := psql.
		Select("id", "name", "address", "health_path", "region", "priority", "capacity").
		From(endpointsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoints query: %w", err)
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	var out []failover.ServiceEndpoint
	for rows.Next() {
		var ep failover.ServiceEndpoint
		err = rows.Scan(&ep.ID, &ep.Name, &ep.Address, &ep.HealthPath, &ep.Region, &ep.Priority, &ep.Capacity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint row: %w", err)
		}
		ep.Status = failover.StatusUnknown
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Source) Rules(ctx context.Context) ([]failover.FailoverRule, error) {
	sql, args, err := psql.
		Select("id", "name", "service_pattern", "enabled", "priority",
			"cooldown", "max_failovers", "time_window",
			"conditions", "strategy", "recovery").
		From(rulesTable).
		Where(squirrel.Eq{"enabled": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build rules query: %w", err)
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []failover.FailoverRule
	for rows.Next() {
		var (
			rule          failover.FailoverRule
			conditionsRaw []byte
			strategyRaw   []byte
			recoveryRaw   []byte
		)
		err = rows.Scan(&rule.ID, &rule.Name, &rule.ServicePattern, &rule.Enabled, &rule.Priority,
			&rule.Cooldown, &rule.MaxFailovers, &rule.TimeWindow,
			&conditionsRaw, &strategyRaw, &recoveryRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		// json.Unmarshal rejects unknown enum values later via Validate,
		// strictly unknown fields are rejected here
		if err = unmarshalStrict(conditionsRaw, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode conditions for rule %s: %w", rule.ID, err)
		}
		if err = unmarshalStrict(strategyRaw, &rule.Strategy); err != nil {
			return nil, fmt.Errorf("failed to decode strategy for rule %s: %w", rule.ID, err)
		}
		if err = unmarshalStrict(recoveryRaw, &rule.Recovery); err != nil {
			return nil, fmt.Errorf("failed to decode recovery for rule %s: %w", rule.ID, err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func unmarshalStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Snapshot loads everything, logging counts. Malformed definitions are
// the caller's startup failure, not skipped rows.
func (s *Source) Snapshot(ctx context.Context) ([]failover.ServiceEndpoint, []failover.FailoverRule, error) {
	endpoints, err := s.Endpoints(ctx)
	if err != nil {
		return nil, nil, err
	}
	rules, err := s.Rules(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msgf("loaded config snapshot: %d endpoints, %d rules", len(endpoints), len(rules))
	return endpoints, rules, nil
}
