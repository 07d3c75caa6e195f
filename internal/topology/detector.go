// Package topology detects whether the target Postgres server is a
// primary or a replica, and whether it has replicas attached, for the
// status command's report. The safety gate does not consult it. Adapted
// from the teacher's MySQL Galera/Group-Replication/Aurora detector,
// simplified to Postgres's single streaming-replication model.
package topology

import (
	"context"
	"strconv"

	"github.com/nethalo/indexadvisor/internal/dbx"
)

// Type represents the detected Postgres role.
type Type string

const (
	Standalone Type = "standalone"
	Primary    Type = "primary" // has replicas attached
	Replica    Type = "replica" // pg_is_in_recovery() = true
)

// Info holds the full topology state.
type Info struct {
	Type Type

	IsReplica bool
	IsPrimary bool // has replicas attached

	ReplicaCount   int
	MaxReplicaLag  *int64 // seconds, largest lag among attached replicas
	ReplicationLagBySlot map[string]int64

	IsCloudManaged bool
	CloudProvider  string // "aws-rds", "aws-aurora-postgres", ""
}

// Detect connects to Postgres and determines the current topology role.
func Detect(ctx context.Context, pool *dbx.Pool) (*Info, error) {
	info := &Info{}

	var inRecovery bool
	if err := pool.QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery); err != nil {
		return nil, dbx.Classify("check recovery state", err)
	}
	info.IsReplica = inRecovery

	if inRecovery {
		info.Type = Replica
		detectCloud(ctx, pool, info)
		return info, nil
	}

	replicas, lagBySlot, err := detectAttachedReplicas(ctx, pool)
	if err != nil {
		return nil, err
	}
	info.ReplicationLagBySlot = lagBySlot
	info.ReplicaCount = len(replicas)

	if info.ReplicaCount > 0 {
		info.IsPrimary = true
		info.Type = Primary
		var max int64
		for _, lag := range lagBySlot {
			if lag > max {
				max = lag
			}
		}
		info.MaxReplicaLag = &max
	} else {
		info.Type = Standalone
	}

	detectCloud(ctx, pool, info)
	return info, nil
}

// detectAttachedReplicas queries pg_stat_replication for connected
// standbys and their replay lag in seconds.
func detectAttachedReplicas(ctx context.Context, pool *dbx.Pool) ([]string, map[string]int64, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			COALESCE(application_name, client_addr::text, 'unknown'),
			COALESCE(EXTRACT(EPOCH FROM replay_lag)::bigint, 0)
		FROM pg_stat_replication
	`)
	if err != nil {
		return nil, nil, dbx.Classify("list replicas", err)
	}
	defer rows.Close()

	names := []string{}
	lag := map[string]int64{}
	for rows.Next() {
		var name string
		var lagSecs int64
		if err := rows.Scan(&name, &lagSecs); err != nil {
			return nil, nil, dbx.Classify("scan replica row", err)
		}
		names = append(names, name)
		lag[name] = lagSecs
	}
	return names, lag, rows.Err()
}

// detectCloud is best-effort: RDS/Aurora expose managed extensions that
// plain Postgres does not.
func detectCloud(ctx context.Context, pool *dbx.Pool, info *Info) {
	var version string
	if err := pool.QueryRow(ctx, `SHOW rds.extensions`).Scan(&version); err == nil {
		info.IsCloudManaged = true
		info.CloudProvider = "aws-rds"
		return
	}
	var auroraVersion string
	if err := pool.QueryRow(ctx, `SELECT aurora_version()`).Scan(&auroraVersion); err == nil {
		info.IsCloudManaged = true
		info.CloudProvider = "aws-aurora-postgres"
	}
}

// LagSeconds returns the replay lag (in seconds) for the named replica,
// or -1 if unknown.
func (i *Info) LagSeconds(name string) int64 {
	if i.ReplicationLagBySlot == nil {
		return -1
	}
	if v, ok := i.ReplicationLagBySlot[name]; ok {
		return v
	}
	return -1
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
