package async

import (
	"database/sql"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// JobScanArgs holds the nullable and text columns of a job row before
// they are converted onto the Job.
type JobScanArgs struct {
	Payload     sql.NullString
	LastError   sql.NullString
	RunAt       string
	CreatedAt   string
	UpdatedAt   string
	StartedAt   sql.NullString
	CompletedAt sql.NullString
}

// GetJobScanArgs returns a JobScanArgs struct with all variables ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns scan destinations in StandardJobSelectColumns order
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.HandlerName,
		&args.Payload,
		&job.Source,
		&job.Status,
		&job.Attempts,
		&args.LastError,
		&args.RunAt,
		&args.CreatedAt,
		&args.UpdatedAt,
		&args.StartedAt,
		&args.CompletedAt,
	}
}

// ProcessJobScanArgs converts the scanned columns onto job.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.LastError.Valid {
		job.LastError = args.LastError.String
	}

	var err error
	if job.RunAt, err = db.ParseTime(args.RunAt); err != nil {
		return errors.Wrapf(err, "failed to parse run_at for job %s", job.ID)
	}
	if job.CreatedAt, err = db.ParseTime(args.CreatedAt); err != nil {
		return errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = db.ParseTime(args.UpdatedAt); err != nil {
		return errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if job.StartedAt, err = db.ParseNullTime(args.StartedAt); err != nil {
		return errors.Wrapf(err, "failed to parse started_at for job %s", job.ID)
	}
	if job.CompletedAt, err = db.ParseNullTime(args.CompletedAt); err != nil {
		return errors.Wrapf(err, "failed to parse completed_at for job %s", job.ID)
	}
	return nil
}

// ScanJobFromRow scans a single job from a sql.Row
func ScanJobFromRow(row *sql.Row, job *Job) error {
	args := GetJobScanArgs()
	if err := row.Scan(GetJobScanTargets(job, args)...); err != nil {
		return err
	}
	return ProcessJobScanArgs(job, args)
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	if err := rows.Scan(GetJobScanTargets(job, args)...); err != nil {
		return err
	}
	return ProcessJobScanArgs(job, args)
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, handler_name, payload, source, status, attempts, last_error,
		run_at, created_at, updated_at, started_at, completed_at`
}
