package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"timeblock/internal/model"
	"timeblock/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const sqliteTimeLayout = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Tasks ----

func (s *sqliteStore) CreateTask(ctx context.Context, t model.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, content, duration_min, due_by, status, start_at, end_at,
		                   template_id, instance_date, window_start, window_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Content, t.DurationMin, nullTime(t.DueBy), string(t.Status),
		nullTime(t.Start), nullTime(t.End),
		nullStr(t.TemplateID), nullDate(t.InstanceDate),
		nullClock(t.WindowStart), nullClock(t.WindowEnd),
		mustTime(t.CreatedAt), mustTime(t.UpdatedAt),
	)
	if err != nil {
		return mapConflict(err)
	}
	if err := insertDeps(ctx, tx, t.ID, t.DependsOn); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, duration_min, due_by, status, start_at, end_at,
		       template_id, instance_date, window_start, window_end, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, err
	}
	deps, err := s.depsOf(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t.DependsOn = deps
	return t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t model.Task) error {
	t.UpdatedAt = time.Now()
	if err := t.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET content = ?, duration_min = ?, due_by = ?, status = ?, start_at = ?, end_at = ?,
		    template_id = ?, instance_date = ?, window_start = ?, window_end = ?, updated_at = ?
		WHERE id = ?`,
		t.Content, t.DurationMin, nullTime(t.DueBy), string(t.Status),
		nullTime(t.Start), nullTime(t.End),
		nullStr(t.TemplateID), nullDate(t.InstanceDate),
		nullClock(t.WindowStart), nullClock(t.WindowEnd),
		mustTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, t.ID); err != nil {
		return err
	}
	if err := insertDeps(ctx, tx, t.ID, t.DependsOn); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	// Edges pointing at the deleted task go too; a dangling dependency
	// would otherwise block nothing but still clutter reads.
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE depends_on_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) CompleteTask(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusCompleted), mustTime(at), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) ListOpenTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, duration_min, due_by, status, start_at, end_at,
		       template_id, instance_date, window_start, window_end, created_at, updated_at
		FROM tasks WHERE status != ? ORDER BY created_at ASC, id ASC`,
		string(model.StatusCompleted),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Task, 0)
	byID := make(map[string]int)
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		byID[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	depRows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id FROM task_dependencies ORDER BY task_id, ord`)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()
	for depRows.Next() {
		var taskID, depID string
		if err := depRows.Scan(&taskID, &depID); err != nil {
			return nil, err
		}
		if i, ok := byID[taskID]; ok {
			out[i].DependsOn = append(out[i].DependsOn, depID)
		}
	}
	return out, depRows.Err()
}

func (s *sqliteStore) ApplyPlacements(ctx context.Context, ps []Placement) error {
	if len(ps) == 0 {
		return nil
	}
	now := mustTime(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range ps {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, start_at = ?, end_at = ?, updated_at = ?
			WHERE id = ?`,
			string(model.StatusScheduled), mustTime(p.Start), mustTime(p.End), now, p.TaskID,
		)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(res); err != nil {
			return fmt.Errorf("placement for task %s: %w", p.TaskID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) CreateInstances(ctx context.Context, tasks []model.Task) (int64, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var created int64
	for _, t := range tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		if err := t.Validate(); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tasks (id, content, duration_min, due_by, status, start_at, end_at,
			                             template_id, instance_date, window_start, window_end, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Content, t.DurationMin, nullTime(t.DueBy), string(t.Status),
			nullTime(t.Start), nullTime(t.End),
			nullStr(t.TemplateID), nullDate(t.InstanceDate),
			nullClock(t.WindowStart), nullClock(t.WindowEnd),
			mustTime(t.CreatedAt), mustTime(t.UpdatedAt),
		)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

func (s *sqliteStore) ClearSchedule(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, start_at = NULL, end_at = NULL, updated_at = ?
		WHERE status IN (?, ?)`,
		string(model.StatusUnscheduled), mustTime(time.Now()),
		string(model.StatusScheduled), string(model.StatusRescheduled),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Templates ----

func (s *sqliteStore) CreateTemplate(ctx context.Context, t model.RecurringTemplate) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, content, duration_min, recurrence, days, window_start, window_end, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Content, t.DurationMin, string(t.Recurrence.Kind), joinDays(t.Recurrence.Days),
		nullClock(t.WindowStart), nullClock(t.WindowEnd), boolInt(t.Active),
		mustTime(t.CreatedAt), mustTime(t.UpdatedAt),
	)
	return mapConflict(err)
}

func (s *sqliteStore) GetTemplate(ctx context.Context, id string) (model.RecurringTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, duration_min, recurrence, days, window_start, window_end, active, created_at, updated_at
		FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RecurringTemplate{}, ErrNotFound
		}
		return model.RecurringTemplate{}, err
	}
	return t, nil
}

func (s *sqliteStore) UpdateTemplate(ctx context.Context, t model.RecurringTemplate) error {
	t.UpdatedAt = time.Now()
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET content = ?, duration_min = ?, recurrence = ?, days = ?, window_start = ?, window_end = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		t.Content, t.DurationMin, string(t.Recurrence.Kind), joinDays(t.Recurrence.Days),
		nullClock(t.WindowStart), nullClock(t.WindowEnd), boolInt(t.Active),
		mustTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *sqliteStore) ListTemplates(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error) {
	query := `
		SELECT id, content, duration_min, recurrence, days, window_start, window_end, active, created_at, updated_at
		FROM templates`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.RecurringTemplate, 0)
	for rows.Next() {
		t, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListInstanceKeys(ctx context.Context) ([]model.InstanceKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, instance_date FROM tasks
		WHERE template_id IS NOT NULL AND instance_date IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.InstanceKey, 0)
	for rows.Next() {
		var tplID, dateStr string
		if err := rows.Scan(&tplID, &dateStr); err != nil {
			return nil, err
		}
		d, err := model.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		out = append(out, model.InstanceKey{TemplateID: tplID, Date: d})
	}
	return out, rows.Err()
}

// ---- Events ----

func (s *sqliteStore) UpsertEvent(ctx context.Context, e model.CalendarEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	cats, err := json.Marshal(e.Categories)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, subject, start_ms, end_ms, managed, source_file, categories, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			managed = excluded.managed,
			source_file = excluded.source_file,
			categories = excluded.categories,
			updated_at = excluded.updated_at`,
		e.ID, e.Subject, e.Start.UnixMilli(), e.End.UnixMilli(),
		boolInt(e.EngineManaged), e.SourceFile, string(cats), mustTime(e.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) ListEventsOverlapping(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, start_ms, end_ms, managed, source_file, categories, updated_at
		FROM events WHERE start_ms < ? AND end_ms > ? ORDER BY start_ms ASC, id ASC`,
		end.UnixMilli(), start.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CalendarEvent, 0)
	for rows.Next() {
		e, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteEventsNotIn(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM events`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keep))
	for i, id := range keep {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- helpers ----

func insertDeps(ctx context.Context, tx *sql.Tx, taskID string, deps []string) error {
	for i, dep := range deps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id, ord) VALUES (?, ?, ?)`,
			taskID, dep, i,
		); err != nil {
			return mapConflict(err)
		}
	}
	return nil
}

func (s *sqliteStore) depsOf(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY ord`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (model.Task, error) {
	var out model.Task
	var status string
	var due, start, end, tplID, instDate, winLo, winHi sql.NullString
	var created, updated string
	if err := sc.Scan(&out.ID, &out.Content, &out.DurationMin, &due, &status, &start, &end,
		&tplID, &instDate, &winLo, &winHi, &created, &updated); err != nil {
		return model.Task{}, err
	}
	out.Status = model.TaskStatus(status)

	var err error
	if out.DueBy, err = parseNullableTime(due); err != nil {
		return model.Task{}, err
	}
	if out.Start, err = parseNullableTime(start); err != nil {
		return model.Task{}, err
	}
	if out.End, err = parseNullableTime(end); err != nil {
		return model.Task{}, err
	}
	out.TemplateID = tplID.String
	if instDate.Valid && instDate.String != "" {
		d, err := model.ParseDate(instDate.String)
		if err != nil {
			return model.Task{}, err
		}
		out.InstanceDate = &d
	}
	if out.WindowStart, err = parseNullableClock(winLo); err != nil {
		return model.Task{}, err
	}
	if out.WindowEnd, err = parseNullableClock(winHi); err != nil {
		return model.Task{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.Task{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func scanTemplate(sc scanner) (model.RecurringTemplate, error) {
	var out model.RecurringTemplate
	var kind, days string
	var winLo, winHi sql.NullString
	var active int
	var created, updated string
	if err := sc.Scan(&out.ID, &out.Content, &out.DurationMin, &kind, &days,
		&winLo, &winHi, &active, &created, &updated); err != nil {
		return model.RecurringTemplate{}, err
	}
	out.Recurrence.Kind = model.RecurrenceKind(kind)
	parsed, err := splitDays(days)
	if err != nil {
		return model.RecurringTemplate{}, err
	}
	out.Recurrence.Days = parsed
	if out.WindowStart, err = parseNullableClock(winLo); err != nil {
		return model.RecurringTemplate{}, err
	}
	if out.WindowEnd, err = parseNullableClock(winHi); err != nil {
		return model.RecurringTemplate{}, err
	}
	out.Active = active == 1
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.RecurringTemplate{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.RecurringTemplate{}, err
	}
	return out, nil
}

func scanEvent(sc scanner) (model.CalendarEvent, error) {
	var out model.CalendarEvent
	var startMS, endMS int64
	var managed int
	var cats string
	var updated string
	if err := sc.Scan(&out.ID, &out.Subject, &startMS, &endMS, &managed, &out.SourceFile, &cats, &updated); err != nil {
		return model.CalendarEvent{}, err
	}
	out.Start = time.UnixMilli(startMS).UTC()
	out.End = time.UnixMilli(endMS).UTC()
	out.EngineManaged = managed == 1
	if cats != "" {
		if err := json.Unmarshal([]byte(cats), &out.Categories); err != nil {
			return model.CalendarEvent{}, err
		}
	}
	var err error
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.CalendarEvent{}, err
	}
	return out, nil
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func nullClock(v *model.TimeOfDay) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func parseNullableClock(v sql.NullString) (*model.TimeOfDay, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tod, err := model.ParseTimeOfDay(v.String)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

func nullDate(v *model.Date) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func joinDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("storage: bad weekday %q: %w", p, err)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
