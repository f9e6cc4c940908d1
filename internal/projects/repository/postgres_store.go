package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/utils"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	versionNumberConstraint = "diagram_versions_diagram_id_version_number_key"

	projectIDPrefix   = "uml"
	projectIDAttempts = 5
	diagramIDPrefix   = "dgm"
	versionIDPrefix   = "dver"
)

// PostgresStore persists projects, diagrams and diagram versions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new store over an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateProject inserts p with a freshly generated public ID. ID, timestamps
// and status are filled in on success.
func (s *PostgresStore) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.Status == "" {
		p.Status = domain.StatusPending
	}

	const q = `
INSERT INTO projects (id, title, prompt, status, error_message, owner_uid)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;
`
	id, err := utils.ClaimTextID(projectIDPrefix, projectIDAttempts, func(id string) (bool, error) {
		err := s.db.QueryRowContext(ctx, q, id, p.Title, p.Prompt, string(p.Status),
			nullString(p.ErrorMessage), nullString(p.OwnerUID)).
			Scan(&p.CreatedAt, &p.UpdatedAt)
		if err == nil {
			return true, nil
		}
		// unique violation on id → retry
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert project: %w", err)
	})
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

const projectColumns = `id, title, prompt, status, error_message, owner_uid, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*domain.Project, error) {
	var (
		p      domain.Project
		status string
		errMsg sql.NullString
		owner  sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Prompt, &status, &errMsg, &owner, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.ProjectStatus(status)
	p.ErrorMessage = stringPtr(errMsg)
	p.OwnerUID = stringPtr(owner)
	return &p, nil
}

// GetProject returns the project row without its diagrams.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("project", id)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetProjectTree returns the project with every diagram and its current version.
func (s *PostgresStore) GetProjectTree(ctx context.Context, id string) (*domain.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	const q = `
SELECT d.id, d.project_id, d.kind, d.dialect, d.title, d.current_version_id, d.created_at, d.updated_at,
       v.id, v.version_number, v.dsl, v.image_url, v.created_at
FROM diagrams d
LEFT JOIN diagram_versions v ON v.id = d.current_version_id AND v.diagram_id = d.id
WHERE d.project_id = $1
ORDER BY d.created_at ASC, d.id ASC;
`
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer rows.Close()

	p.Diagrams = make([]domain.Diagram, 0, 6)
	for rows.Next() {
		d, err := scanDiagramWithCurrent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		p.Diagrams = append(p.Diagrams, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagrams: %w", err)
	}
	return p, nil
}

// ListProjects returns the owner's projects, newest first, each with its
// diagrams and their current versions.
func (s *PostgresStore) ListProjects(ctx context.Context, ownerUID string) ([]domain.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects WHERE owner_uid = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Diagrams = []domain.Diagram{}
		index[p.ID] = len(out)
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	const dq = `
SELECT d.id, d.project_id, d.kind, d.dialect, d.title, d.current_version_id, d.created_at, d.updated_at,
       v.id, v.version_number, v.dsl, v.image_url, v.created_at
FROM diagrams d
JOIN projects p ON p.id = d.project_id
LEFT JOIN diagram_versions v ON v.id = d.current_version_id AND v.diagram_id = d.id
WHERE p.owner_uid = $1
ORDER BY d.created_at ASC, d.id ASC;
`
	drows, err := s.db.QueryContext(ctx, dq, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer drows.Close()

	for drows.Next() {
		d, err := scanDiagramWithCurrent(drows)
		if err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		// project inserted after the first query
		i, ok := index[d.ProjectID]
		if !ok {
			continue
		}
		out[i].Diagrams = append(out[i].Diagrams, *d)
	}
	if err := drows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagrams: %w", err)
	}
	return out, nil
}

// SetProjectStatus moves a PENDING project to status. DONE and ERROR are
// terminal: a project that already left PENDING is never moved again.
func (s *PostgresStore) SetProjectStatus(ctx context.Context, id string, status domain.ProjectStatus, errMsg *string) error {
	const q = `
UPDATE projects
SET status = $2, error_message = $3, updated_at = now()
WHERE id = $1 AND status = 'PENDING';
`
	res, err := s.db.ExecContext(ctx, q, id, string(status), nullString(errMsg))
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := s.GetProject(ctx, id)
		if err != nil {
			return err
		}
		return domain.InvalidState("project", id, "project already "+string(cur.Status))
	}
	return nil
}

// CreateDiagramWithVersion inserts a diagram, its version #1 and the current
// pointer in one transaction, so readers never see a diagram without its first version.
func (s *PostgresStore) CreateDiagramWithVersion(ctx context.Context, in domain.NewDiagramInput) (*domain.Diagram, error) {
	diagramID, err := utils.NewID(diagramIDPrefix)
	if err != nil {
		return nil, err
	}
	versionID, err := utils.NewID(versionIDPrefix)
	if err != nil {
		return nil, err
	}
	if in.Dialect == "" {
		in.Dialect = domain.DialectPlantUML
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	d := domain.Diagram{
		ID:        diagramID,
		ProjectID: in.ProjectID,
		Kind:      in.Kind,
		Dialect:   in.Dialect,
		Title:     in.Title,
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO diagrams (id, project_id, kind, dialect, title)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at;
`, diagramID, in.ProjectID, string(in.Kind), string(in.Dialect), in.Title).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, domain.NotFound("project", in.ProjectID)
		}
		return nil, fmt.Errorf("insert diagram: %w", err)
	}

	v := domain.DiagramVersion{
		ID:            versionID,
		DiagramID:     diagramID,
		VersionNumber: 1,
		DSL:           in.DSL,
		ImageURL:      in.ImageURL,
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO diagram_versions (id, diagram_id, version_number, dsl, image_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at;
`, versionID, diagramID, 1, in.DSL, nullString(in.ImageURL)).Scan(&v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE diagrams SET current_version_id = $2, updated_at = now() WHERE id = $1;
`, diagramID, versionID); err != nil {
		return nil, fmt.Errorf("set current version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	d.CurrentVersionID = &versionID
	d.CurrentVersion = &v
	return &d, nil
}

const diagramWithCurrentQuery = `
SELECT d.id, d.project_id, d.kind, d.dialect, d.title, d.current_version_id, d.created_at, d.updated_at,
       v.id, v.version_number, v.dsl, v.image_url, v.created_at
FROM diagrams d
LEFT JOIN diagram_versions v ON v.id = d.current_version_id AND v.diagram_id = d.id
WHERE d.id = $1;
`

func scanDiagramWithCurrent(row interface{ Scan(...any) error }) (*domain.Diagram, error) {
	var (
		d         domain.Diagram
		kind      string
		dialect   string
		currentID sql.NullString
		vID       sql.NullString
		vNumber   sql.NullInt64
		vDSL      sql.NullString
		vImage    sql.NullString
		vCreated  sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.ProjectID, &kind, &dialect, &d.Title, &currentID, &d.CreatedAt, &d.UpdatedAt,
		&vID, &vNumber, &vDSL, &vImage, &vCreated); err != nil {
		return nil, err
	}
	d.Kind = domain.DiagramKind(kind)
	d.Dialect = domain.Dialect(dialect)
	d.CurrentVersionID = stringPtr(currentID)
	if vID.Valid {
		d.CurrentVersion = &domain.DiagramVersion{
			ID:            vID.String,
			DiagramID:     d.ID,
			VersionNumber: int(vNumber.Int64),
			DSL:           vDSL.String,
			ImageURL:      stringPtr(vImage),
			CreatedAt:     vCreated.Time,
		}
	}
	return &d, nil
}

// GetDiagram returns the diagram with its current version populated.
func (s *PostgresStore) GetDiagram(ctx context.Context, id string) (*domain.Diagram, error) {
	d, err := scanDiagramWithCurrent(s.db.QueryRowContext(ctx, diagramWithCurrentQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("diagram", id)
		}
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	return d, nil
}

// LoadDiagramContext loads a diagram, its project and its highest-numbered version.
func (s *PostgresStore) LoadDiagramContext(ctx context.Context, diagramID string) (*domain.DiagramContext, error) {
	d, err := s.GetDiagram(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	p, err := s.GetProject(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}

	out := &domain.DiagramContext{Diagram: *d, Project: *p}

	const q = `
SELECT id, version_number, dsl, image_url, created_at
FROM diagram_versions
WHERE diagram_id = $1
ORDER BY version_number DESC
LIMIT 1;
`
	v, err := scanVersion(s.db.QueryRowContext(ctx, q, diagramID), diagramID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("latest version: %w", err)
	default:
		out.Latest = v
	}
	return out, nil
}

// MaxVersionNumber returns the highest version number of the diagram, 0 if none.
func (s *PostgresStore) MaxVersionNumber(ctx context.Context, diagramID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version_number), 0) FROM diagram_versions WHERE diagram_id = $1;
`, diagramID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	return n, nil
}

// AppendVersion inserts a new version and repoints the diagram at it (and
// updates the title when given) in one transaction. A taken version number
// yields ErrVersionConflict; nothing is written in that case.
func (s *PostgresStore) AppendVersion(ctx context.Context, in domain.NewVersionInput) (*domain.DiagramVersion, error) {
	versionID, err := utils.NewID(versionIDPrefix)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	v := domain.DiagramVersion{
		ID:            versionID,
		DiagramID:     in.DiagramID,
		VersionNumber: in.VersionNumber,
		DSL:           in.DSL,
		ImageURL:      in.ImageURL,
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO diagram_versions (id, diagram_id, version_number, dsl, image_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at;
`, versionID, in.DiagramID, in.VersionNumber, in.DSL, nullString(in.ImageURL)).Scan(&v.CreatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgUniqueViolation && pgErr.Constraint == versionNumberConstraint:
				return nil, domain.VersionConflict(in.DiagramID, in.VersionNumber)
			case pgErr.Code == pgForeignKeyViolation:
				return nil, domain.NotFound("diagram", in.DiagramID)
			}
		}
		return nil, fmt.Errorf("insert version: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE diagrams
SET current_version_id = $2,
    title = COALESCE(NULLIF($3, ''), title),
    updated_at = now()
WHERE id = $1;
`, in.DiagramID, versionID, in.Title)
	if err != nil {
		return nil, fmt.Errorf("set current version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFound("diagram", in.DiagramID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &v, nil
}

func scanVersion(row interface{ Scan(...any) error }, diagramID string) (*domain.DiagramVersion, error) {
	var (
		v     domain.DiagramVersion
		image sql.NullString
	)
	if err := row.Scan(&v.ID, &v.VersionNumber, &v.DSL, &image, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.DiagramID = diagramID
	v.ImageURL = stringPtr(image)
	return &v, nil
}

func (s *PostgresStore) diagramExists(ctx context.Context, diagramID string) error {
	var ok int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM diagrams WHERE id = $1`, diagramID).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound("diagram", diagramID)
	}
	return err
}

// ListVersions returns every version of the diagram, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, diagramID string) ([]domain.DiagramVersion, error) {
	if err := s.diagramExists(ctx, diagramID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, version_number, dsl, image_url, created_at
FROM diagram_versions
WHERE diagram_id = $1
ORDER BY version_number DESC;
`, diagramID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DiagramVersion, 0, 8)
	for rows.Next() {
		v, err := scanVersion(rows, diagramID)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVersion returns one version, which must belong to diagramID.
func (s *PostgresStore) GetVersion(ctx context.Context, diagramID, versionID string) (*domain.DiagramVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
SELECT id, version_number, dsl, image_url, created_at
FROM diagram_versions
WHERE id = $1 AND diagram_id = $2;
`, versionID, diagramID), diagramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("diagram_version", versionID)
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// SetCurrentVersion repoints the diagram at versionID. The update only matches
// when the version belongs to the diagram.
func (s *PostgresStore) SetCurrentVersion(ctx context.Context, diagramID, versionID string) (*domain.Diagram, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE diagrams
SET current_version_id = $2, updated_at = now()
WHERE id = $1
  AND EXISTS (SELECT 1 FROM diagram_versions WHERE id = $2 AND diagram_id = $1);
`, diagramID, versionID)
	if err != nil {
		return nil, fmt.Errorf("switch version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := s.diagramExists(ctx, diagramID); err != nil {
			return nil, err
		}
		return nil, domain.NotFound("diagram_version", versionID)
	}
	return s.GetDiagram(ctx, diagramID)
}

// ListArtifacts returns every non-null image URL under the project.
func (s *PostgresStore) ListArtifacts(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT v.image_url
FROM diagram_versions v
JOIN diagrams d ON d.id = v.diagram_id
WHERE d.project_id = $1 AND v.image_url IS NOT NULL;
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteProject removes the project; diagrams and versions cascade.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("project", id)
	}
	return nil
}

// FailStalePending moves PENDING projects not updated since before cutoff to ERROR.
func (s *PostgresStore) FailStalePending(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE projects
SET status = 'ERROR', error_message = $2, updated_at = now()
WHERE status = 'PENDING' AND updated_at < $1;
`, cutoff, message)
	if err != nil {
		return 0, fmt.Errorf("fail stale projects: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
