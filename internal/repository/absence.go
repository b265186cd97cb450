package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hissa/hissa/internal/database"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/model"
)

// absenceRow 缺勤表行
type absenceRow struct {
	ID           string         `db:"id"`
	SchoolID     string         `db:"school_id"`
	TeacherID    string         `db:"teacher_id"`
	Date         time.Time      `db:"date"`
	Periods      pq.Int64Array  `db:"periods"`
	SubstituteID sql.NullString `db:"substitute_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r absenceRow) toModel() *model.Absence {
	periods := make([]int, len(r.Periods))
	for i, p := range r.Periods {
		periods[i] = int(p)
	}
	return &model.Absence{
		BaseModel:    model.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		TeacherID:    r.TeacherID,
		Date:         r.Date.Format(model.DateLayout),
		Periods:      periods,
		SubstituteID: r.SubstituteID.String,
		SchoolID:     r.SchoolID,
	}
}

func toInt64s(periods []int) pq.Int64Array {
	result := make(pq.Int64Array, len(periods))
	for i, p := range periods {
		result[i] = int64(p)
	}
	return result
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const absenceColumns = `id, school_id, teacher_id, date, periods, substitute_id, created_at, updated_at`

// PostgresAbsenceRepository 缺勤记录仓储实现
type PostgresAbsenceRepository struct {
	db *database.DB
}

// NewAbsenceRepository 创建缺勤记录仓储
func NewAbsenceRepository(db *database.DB) *PostgresAbsenceRepository {
	return &PostgresAbsenceRepository{db: db}
}

// Create 在同一事务中写入缺勤记录
func (r *PostgresAbsenceRepository) Create(ctx context.Context, absences ...*model.Absence) error {
	if len(absences) == 0 {
		return nil
	}

	const query = `
INSERT INTO absences (id, school_id, teacher_id, date, periods, substitute_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, a := range absences {
			if a.ID == "" {
				a.BaseModel = model.NewBaseModel()
			}
			a.CreatedAt = now
			a.UpdatedAt = now

			_, err := tx.ExecContext(ctx, query,
				a.ID, a.SchoolID, a.TeacherID, a.Date, toInt64s(a.Periods),
				nullable(a.SubstituteID), a.CreatedAt, a.UpdatedAt,
			)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeDatabaseError, "创建缺勤记录失败")
			}
		}
		return nil
	})
}

// GetByID 根据ID获取缺勤记录
func (r *PostgresAbsenceRepository) GetByID(ctx context.Context, id string) (*model.Absence, error) {
	query := `SELECT ` + absenceColumns + ` FROM absences WHERE id = $1`

	var row absenceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.AbsenceNotFound(id)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询缺勤记录失败")
	}
	return row.toModel(), nil
}

// List 查询缺勤记录
func (r *PostgresAbsenceRepository) List(ctx context.Context, filter AbsenceFilter) ([]*model.Absence, error) {
	var where whereBuilder
	if filter.SchoolID != "" {
		where.add("school_id = $%d", filter.SchoolID)
	}
	if filter.Date != "" {
		where.add("date = $%d", filter.Date)
	}
	if filter.TeacherID != "" {
		where.add("teacher_id = $%d", filter.TeacherID)
	}
	query := `SELECT ` + absenceColumns + ` FROM absences` + where.String() + ` ORDER BY date DESC, created_at, id`

	var rows []absenceRow
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询缺勤记录失败")
	}

	result := make([]*model.Absence, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

// UpdateSubstitute 设置或清除代课教师，substituteID 为空表示清除
func (r *PostgresAbsenceRepository) UpdateSubstitute(ctx context.Context, id, substituteID string) error {
	const query = `UPDATE absences SET substitute_id = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, nullable(substituteID), time.Now().UTC(), id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "更新代课教师失败")
	}
	return expectAffected(result, id)
}

// Delete 删除缺勤记录
func (r *PostgresAbsenceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM absences WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "删除缺勤记录失败")
	}
	return expectAffected(result, id)
}

// DeleteMany 批量删除，返回删除条数
func (r *PostgresAbsenceRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM absences WHERE id = ANY($1)`
	result, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "批量删除缺勤记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "批量删除缺勤记录失败")
	}
	return int(affected), nil
}

func expectAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取影响行数失败")
	}
	if affected == 0 {
		return apperrors.AbsenceNotFound(id)
	}
	return nil
}
