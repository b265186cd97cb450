package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/hissa/hissa/internal/database"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/model"
)

// scheduleRow 课表表行，节次等结构化内容存放在 body 中
type scheduleRow struct {
	ID         string         `db:"id"`
	SchoolID   string         `db:"school_id"`
	Name       string         `db:"name"`
	Body       types.JSONText `db:"body"`
	Approved   bool           `db:"approved"`
	ApprovedAt sql.NullTime   `db:"approved_at"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type scheduleBody struct {
	Teachers []model.Teacher      `json:"teachers"`
	Subjects []model.Subject      `json:"subjects"`
	Classes  []model.Class        `json:"classes"`
	Days     []model.Day          `json:"days"`
	Slots    []model.ScheduleSlot `json:"slots"`
}

func (r scheduleRow) toModel() (*model.Schedule, error) {
	var body scheduleBody
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, &body); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "解析课表内容失败")
		}
	}
	s := &model.Schedule{
		BaseModel: model.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Name:      r.Name,
		SchoolID:  r.SchoolID,
		Teachers:  body.Teachers,
		Subjects:  body.Subjects,
		Classes:   body.Classes,
		Days:      body.Days,
		Slots:     body.Slots,
		Approved:  r.Approved,
	}
	if r.ApprovedAt.Valid {
		at := r.ApprovedAt.Time
		s.ApprovedAt = &at
	}
	return s, nil
}

const scheduleColumns = `id, school_id, name, body, approved, approved_at, created_at, updated_at`

// PostgresScheduleRepository 课表仓储实现
type PostgresScheduleRepository struct {
	db *database.DB
}

// NewScheduleRepository 创建课表仓储
func NewScheduleRepository(db *database.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

// Save 保存课表（存在则覆盖）
func (r *PostgresScheduleRepository) Save(ctx context.Context, schedule *model.Schedule) error {
	if schedule.ID == "" {
		schedule.BaseModel = model.NewBaseModel()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	body, err := json.Marshal(scheduleBody{
		Teachers: schedule.Teachers,
		Subjects: schedule.Subjects,
		Classes:  schedule.Classes,
		Days:     schedule.Days,
		Slots:    schedule.Slots,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "序列化课表失败")
	}

	var approvedAt sql.NullTime
	if schedule.ApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *schedule.ApprovedAt, Valid: true}
	}

	const query = `
INSERT INTO schedules (id, school_id, name, body, approved, approved_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	school_id = EXCLUDED.school_id,
	name = EXCLUDED.name,
	body = EXCLUDED.body,
	approved = EXCLUDED.approved,
	approved_at = EXCLUDED.approved_at,
	updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		schedule.ID, schedule.SchoolID, schedule.Name, types.JSONText(body),
		schedule.Approved, approvedAt, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "保存课表失败")
	}
	return nil
}

// GetByID 根据ID获取课表
func (r *PostgresScheduleRepository) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	var row scheduleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ScheduleNotFound(id)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询课表失败")
	}
	return row.toModel()
}

// List 查询课表
func (r *PostgresScheduleRepository) List(ctx context.Context, filter ScheduleFilter) (model.ScheduleSet, error) {
	var where whereBuilder
	if filter.SchoolID != "" {
		where.add("school_id = $%d", filter.SchoolID)
	}
	if filter.ApprovedOnly {
		where.addRaw("approved = TRUE")
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedules` + where.String() + ` ORDER BY created_at, id`

	var rows []scheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询课表列表失败")
	}

	result := make(model.ScheduleSet, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// SetApproved 批准或撤销批准
func (r *PostgresScheduleRepository) SetApproved(ctx context.Context, id string, approved bool, at time.Time) error {
	var approvedAt sql.NullTime
	if approved {
		approvedAt = sql.NullTime{Time: at, Valid: true}
	}

	const query = `UPDATE schedules SET approved = $1, approved_at = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, approved, approvedAt, time.Now().UTC(), id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "更新课表批准状态失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "更新课表批准状态失败")
	}
	if affected == 0 {
		return apperrors.ScheduleNotFound(id)
	}
	return nil
}
