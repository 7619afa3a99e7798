package jobs

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// Repository manages persistence for jobs and applications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateJob(ctx context.Context, job *models.Job) error
	FindJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListOpenJobs(ctx context.Context) ([]models.Job, error)
	ListJobsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Job, error)
	ListJobsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Job, error)
	TransitionJobStatus(ctx context.Context, id uuid.UUID, from, to enums.JobStatus, updates map[string]any) (bool, error)
	CreateApplication(ctx context.Context, application *models.Application) error
	FindApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	HasApplication(ctx context.Context, jobID, freelancerID uuid.UUID) (bool, error)
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.Application, error)
	ListApplicationsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status enums.ApplicationStatus) error
	DeclinePendingApplications(ctx context.Context, jobID uuid.UUID, exceptID uuid.UUID) error
	FindHoldPayment(ctx context.Context, jobID uuid.UUID) (*models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a jobs repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateJob(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListOpenJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.JobStatusOpen).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) ListJobsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) ListJobsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("freelancer_id = ?", freelancerID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// TransitionJobStatus moves a job between statuses with a guarded update.
// Extra column updates ride along only when the guard matches.
func (r *repository) TransitionJobStatus(ctx context.Context, id uuid.UUID, from, to enums.JobStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CreateApplication(ctx context.Context, application *models.Application) error {
	return r.db.WithContext(ctx).Create(application).Error
}

func (r *repository) FindApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var application models.Application
	if err := r.db.WithContext(ctx).First(&application, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &application, nil
}

func (r *repository) HasApplication(ctx context.Context, jobID, freelancerID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("job_id = ? AND freelancer_id = ?", jobID, freelancerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.Application, error) {
	var applications []models.Application
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("applied_at ASC").
		Find(&applications).Error; err != nil {
		return nil, err
	}
	return applications, nil
}

func (r *repository) ListApplicationsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Application, error) {
	var applications []models.Application
	if err := r.db.WithContext(ctx).
		Where("freelancer_id = ?", freelancerID).
		Order("applied_at DESC").
		Find(&applications).Error; err != nil {
		return nil, err
	}
	return applications, nil
}

func (r *repository) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status enums.ApplicationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeclinePendingApplications(ctx context.Context, jobID uuid.UUID, exceptID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("job_id = ? AND id <> ? AND status = ?", jobID, exceptID, enums.ApplicationStatusPending).
		Update("status", enums.ApplicationStatusDeclined).Error
}

func (r *repository) FindHoldPayment(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, enums.PaymentStatusOnHold).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}
