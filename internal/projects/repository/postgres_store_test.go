package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/utils"
)

var projectCols = []string{"id", "title", "prompt", "status", "error_message", "owner_uid", "created_at", "updated_at"}

func setupPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresStore(db), mock, db
}

func TestPostgresStore_CreateProject(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("inserts pending project", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO projects`).
			WithArgs(sqlmock.AnyArg(), "Library", "books and members", "PENDING", nil, "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		owner := "user-1"
		p := &domain.Project{Title: "Library", Prompt: "books and members", OwnerUID: &owner}
		require.NoError(t, store.CreateProject(ctx, p))

		assert.Regexp(t, `^uml-\w{4}-\w{4}$`, p.ID)
		assert.Equal(t, domain.StatusPending, p.Status)
		assert.False(t, p.CreatedAt.IsZero())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries on id collision", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO projects`).
			WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "projects_pkey"})
		mock.ExpectQuery(`INSERT INTO projects`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		p := &domain.Project{Title: "t", Prompt: "p"}
		require.NoError(t, store.CreateProject(ctx, p))
		assert.NotEmpty(t, p.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			mock.ExpectQuery(`INSERT INTO projects`).
				WillReturnError(&pq.Error{Code: pgUniqueViolation})
		}

		err := store.CreateProject(ctx, &domain.Project{Title: "t", Prompt: "p"})
		assert.ErrorIs(t, err, utils.ErrIDExhausted)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetProject(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE id = \$1`).
			WithArgs("uml-12345-6789").
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow("uml-12345-6789", "Library", "prompt", "ERROR", "boom", nil, now, now))

		p, err := store.GetProject(ctx, "uml-12345-6789")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, p.Status)
		require.NotNil(t, p.ErrorMessage)
		assert.Equal(t, "boom", *p.ErrorMessage)
		assert.Nil(t, p.OwnerUID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE id = \$1`).
			WithArgs("uml-00000-0000").
			WillReturnRows(sqlmock.NewRows(projectCols))

		_, err := store.GetProject(ctx, "uml-00000-0000")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_SetProjectStatus(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("updates", func(t *testing.T) {
		mock.ExpectExec(`UPDATE projects SET status`).
			WithArgs("uml-1", "DONE", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetProjectStatus(ctx, "uml-1", domain.StatusDone, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("done is terminal", func(t *testing.T) {
		now := time.Now()
		mock.ExpectExec(`UPDATE projects SET status`).
			WithArgs("uml-1", "ERROR", "late failure").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE id = \$1`).
			WithArgs("uml-1").
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow("uml-1", "t", "p", "DONE", nil, nil, now, now))

		msg := "late failure"
		err := store.SetProjectStatus(ctx, "uml-1", domain.StatusError, &msg)
		assert.True(t, errors.Is(err, domain.ErrInvalidState))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error is terminal", func(t *testing.T) {
		now := time.Now()
		mock.ExpectExec(`UPDATE projects SET status (.+) WHERE id = \$1 AND status = 'PENDING'`).
			WithArgs("uml-2", "DONE", nil).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE id = \$1`).
			WithArgs("uml-2").
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow("uml-2", "t", "p", "ERROR", "generation timed out", nil, now, now))

		err := store.SetProjectStatus(ctx, "uml-2", domain.StatusDone, nil)
		assert.True(t, errors.Is(err, domain.ErrInvalidState))
		assert.Contains(t, err.Error(), "already ERROR")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListProjects(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()
	diagramCols := []string{"id", "project_id", "kind", "dialect", "title", "current_version_id", "created_at", "updated_at",
		"v_id", "version_number", "dsl", "image_url", "v_created_at"}

	t.Run("attaches diagrams with current versions", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE owner_uid = \$1 ORDER BY created_at DESC`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow("uml-2", "newer", "p", "DONE", nil, "user-1", now, now).
				AddRow("uml-1", "older", "p", "ERROR", "timed out", "user-1", now.Add(-time.Hour), now))
		mock.ExpectQuery(`SELECT (.+) FROM diagrams d JOIN projects p ON p.id = d.project_id (.+) WHERE p.owner_uid = \$1`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows(diagramCols).
				AddRow("dgm_a", "uml-2", "CLASS", "PLANTUML", "Classes", "dver_a2", now, now,
					"dver_a2", 2, "@startuml\n@enduml", "https://img/a2.svg", now).
				AddRow("dgm_b", "uml-2", "STATE", "PLANTUML", "States", "dver_b1", now, now,
					"dver_b1", 1, "@startuml\n@enduml", nil, now).
				AddRow("dgm_x", "uml-9", "CLASS", "PLANTUML", "Late", "dver_x1", now, now,
					"dver_x1", 1, "x", nil, now))

		got, err := store.ListProjects(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "uml-2", got[0].ID)
		require.Len(t, got[0].Diagrams, 2)
		require.NotNil(t, got[0].Diagrams[0].CurrentVersion)
		assert.Equal(t, 2, got[0].Diagrams[0].CurrentVersion.VersionNumber)
		assert.Nil(t, got[0].Diagrams[1].CurrentVersion.ImageURL)
		assert.Empty(t, got[1].Diagrams)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no projects skips diagram query", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM projects WHERE owner_uid = \$1`).
			WithArgs("nobody").
			WillReturnRows(sqlmock.NewRows(projectCols))

		got, err := store.ListProjects(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateDiagramWithVersion(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("writes diagram, version one and current pointer in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO diagrams`).
			WithArgs(sqlmock.AnyArg(), "uml-1", "CLASS", "PLANTUML", "Classes").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery(`INSERT INTO diagram_versions`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 1, "@startuml\n@enduml", nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
		mock.ExpectExec(`UPDATE diagrams SET current_version_id`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		d, err := store.CreateDiagramWithVersion(ctx, domain.NewDiagramInput{
			ProjectID: "uml-1",
			Kind:      domain.KindClass,
			Title:     "Classes",
			DSL:       "@startuml\n@enduml",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.DialectPlantUML, d.Dialect)
		require.NotNil(t, d.CurrentVersion)
		assert.Equal(t, 1, d.CurrentVersion.VersionNumber)
		assert.Equal(t, *d.CurrentVersionID, d.CurrentVersion.ID)
		assert.Nil(t, d.CurrentVersion.ImageURL)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO diagrams`).
			WillReturnError(&pq.Error{Code: pgForeignKeyViolation})
		mock.ExpectRollback()

		_, err := store.CreateDiagramWithVersion(ctx, domain.NewDiagramInput{ProjectID: "uml-x", Kind: domain.KindState})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_AppendVersion(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("inserts and repoints", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO diagram_versions`).
			WithArgs(sqlmock.AnyArg(), "dgm_1", 3, "src", "https://img/3.png").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`UPDATE diagrams SET current_version_id = \$2, title = COALESCE`).
			WithArgs("dgm_1", sqlmock.AnyArg(), "Refined").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		img := "https://img/3.png"
		v, err := store.AppendVersion(ctx, domain.NewVersionInput{
			DiagramID: "dgm_1", VersionNumber: 3, DSL: "src", ImageURL: &img, Title: "Refined",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, v.VersionNumber)
		assert.Regexp(t, `^dver_[0-9a-f]{32}$`, v.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken number is a version conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO diagram_versions`).
			WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: versionNumberConstraint})
		mock.ExpectRollback()

		_, err := store.AppendVersion(ctx, domain.NewVersionInput{DiagramID: "dgm_1", VersionNumber: 2, DSL: "src"})
		assert.True(t, errors.Is(err, domain.ErrVersionConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown diagram", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO diagram_versions`).
			WillReturnError(&pq.Error{Code: pgForeignKeyViolation})
		mock.ExpectRollback()

		_, err := store.AppendVersion(ctx, domain.NewVersionInput{DiagramID: "dgm_x", VersionNumber: 2, DSL: "src"})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_SetCurrentVersion(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("version of another diagram", func(t *testing.T) {
		mock.ExpectExec(`UPDATE diagrams SET current_version_id = \$2, updated_at = now\(\) WHERE id = \$1 AND EXISTS`).
			WithArgs("dgm_1", "dver_other").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM diagrams WHERE id = \$1`).
			WithArgs("dgm_1").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		_, err := store.SetCurrentVersion(ctx, "dgm_1", "dver_other")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Contains(t, err.Error(), "diagram_version dver_other")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown diagram", func(t *testing.T) {
		mock.ExpectExec(`UPDATE diagrams SET current_version_id`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM diagrams WHERE id = \$1`).
			WithArgs("dgm_x").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		_, err := store.SetCurrentVersion(ctx, "dgm_x", "dver_1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Contains(t, err.Error(), "diagram dgm_x")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListVersions(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	now := time.Now()

	mock.ExpectQuery(`SELECT 1 FROM diagrams WHERE id = \$1`).
		WithArgs("dgm_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT id, version_number, dsl, image_url, created_at FROM diagram_versions WHERE diagram_id = \$1 ORDER BY version_number DESC`).
		WithArgs("dgm_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_number", "dsl", "image_url", "created_at"}).
			AddRow("dver_b", 2, "v2", nil, now).
			AddRow("dver_a", 1, "v1", "https://img/1.png", now))

	versions, err := store.ListVersions(context.Background(), "dgm_1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)
	assert.Nil(t, versions[0].ImageURL)
	require.NotNil(t, versions[1].ImageURL)
	assert.Equal(t, "dgm_1", versions[1].DiagramID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProject(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM projects WHERE id = \$1`).
		WithArgs("uml-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteProject(context.Background(), "uml-1"))

	mock.ExpectExec(`DELETE FROM projects WHERE id = \$1`).
		WithArgs("uml-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.DeleteProject(context.Background(), "uml-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailStalePending(t *testing.T) {
	store, mock, db := setupPostgresStore(t)
	defer db.Close()
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectExec(`UPDATE projects SET status = 'ERROR'`).
		WithArgs(cutoff, "generation timed out").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.FailStalePending(context.Background(), cutoff, "generation timed out")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
