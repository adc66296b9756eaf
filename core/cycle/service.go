// Package cycle manages school cycles and what they are split into: partials (grading periods) and formative fields.
// Only the teacher owning a cycle (or an admin) may modify it or its children.
package cycle

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/school"
	"github.com/trezcool/escolar/core/user"
)

var (
	// errors
	ErrNotFound               = core.NewNotFoundError("school cycle")
	ErrPartialNotFound        = core.NewNotFoundError("partial")
	ErrFormativeFieldNotFound = core.NewNotFoundError("formative field")
)

type (
	Repository interface {
		CreateCycle(ctx context.Context, cyc SchoolCycle, exec ...core.DBExecutor) (SchoolCycle, error)
		GetCycleByID(ctx context.Context, id int64, exec ...core.DBExecutor) (SchoolCycle, error)
		FilterCycles(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]SchoolCycle, error)
		UpdateCycle(ctx context.Context, cyc SchoolCycle, exec ...core.DBExecutor) (SchoolCycle, error)
		DeleteCycle(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreatePartial(ctx context.Context, p Partial, exec ...core.DBExecutor) (Partial, error)
		GetPartialByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Partial, error)
		QueryPartials(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]Partial, error)
		UpdatePartial(ctx context.Context, p Partial, exec ...core.DBExecutor) (Partial, error)
		DeletePartial(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateFormativeField(ctx context.Context, ff FormativeField, exec ...core.DBExecutor) (FormativeField, error)
		GetFormativeFieldByID(ctx context.Context, id int64, exec ...core.DBExecutor) (FormativeField, error)
		QueryFormativeFields(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]FormativeField, error)
		UpdateFormativeField(ctx context.Context, ff FormativeField, exec ...core.DBExecutor) (FormativeField, error)
		DeleteFormativeField(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	ReferenceChecker interface {
		CheckReference(ctx context.Context, kind catalog.Kind, id int64, field string) error
	}

	SchoolGetter interface {
		GetByID(ctx context.Context, id int64) (school.School, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
	}

	Service struct {
		db      core.DB
		repo    Repository
		refs    ReferenceChecker
		schools SchoolGetter
		users   UserGetter
	}
)

func NewService(db core.DB, repo Repository, refs ReferenceChecker, schools SchoolGetter, users UserGetter) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		refs:    refs,
		schools: schools,
		users:   users,
	}
}

// CanManage reports whether actor may modify the cycle and its children.
func CanManage(actor user.User, cyc SchoolCycle) bool {
	return actor.IsAdmin() || (actor.ID != 0 && cyc.TeacherID == actor.ID)
}

// ManageableCycle returns the cycle if actor may modify it, core.ErrPermissionDenied otherwise.
func (svc *Service) ManageableCycle(ctx context.Context, actor user.User, cycleID int64) (SchoolCycle, error) {
	cyc, err := svc.repo.GetCycleByID(ctx, cycleID)
	if err != nil {
		return SchoolCycle{}, err
	}
	if !CanManage(actor, cyc) {
		return SchoolCycle{}, core.ErrPermissionDenied
	}
	return cyc, nil
}

func (svc *Service) checkSchool(ctx context.Context, id int64) error {
	if _, err := svc.schools.GetByID(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("school_id", "does not exist")
		}
		return errors.Wrap(err, "finding school")
	}
	return nil
}

// Cycles

// CreateCycle creates a cycle. Teachers always own the cycles they create; admins may pick the teacher.
func (svc *Service) CreateCycle(ctx context.Context, actor user.User, nc NewCycle) (SchoolCycle, error) {
	if !(actor.IsAdmin() || actor.IsTeacher()) {
		return SchoolCycle{}, core.ErrPermissionDenied
	}

	teacherID := actor.ID
	if actor.IsAdmin() && nc.TeacherID != 0 && nc.TeacherID != actor.ID {
		teacher, err := svc.users.GetByID(ctx, nc.TeacherID)
		if err != nil {
			if core.IsNotFound(err) {
				return SchoolCycle{}, core.NewFieldError("teacher_id", "does not exist")
			}
			return SchoolCycle{}, errors.Wrap(err, "finding teacher")
		}
		if !(teacher.IsTeacher() || teacher.IsAdmin()) {
			return SchoolCycle{}, core.NewFieldError("teacher_id", "user is not a teacher")
		}
		teacherID = teacher.ID
	}

	if err := svc.checkSchool(ctx, nc.SchoolID); err != nil {
		return SchoolCycle{}, err
	}
	if err := svc.refs.CheckReference(ctx, catalog.PeriodCatalogs, nc.PeriodCatalogID.Int64, "period_catalog_id"); err != nil {
		return SchoolCycle{}, err
	}

	return svc.repo.CreateCycle(ctx, SchoolCycle{
		SchoolID:        nc.SchoolID,
		TeacherID:       teacherID,
		Name:            nc.Name,
		Year:            nc.Year,
		CycleLabel:      nc.CycleLabel,
		Grade:           nc.Grade,
		GroupName:       nc.GroupName,
		PeriodCatalogID: nc.PeriodCatalogID,
		IsActive:        nc.IsActive == nil || *nc.IsActive,
		CreatedAt:       time.Now().UTC(),
	})
}

func (svc *Service) GetCycle(ctx context.Context, id int64) (SchoolCycle, error) {
	return svc.repo.GetCycleByID(ctx, id)
}

func (svc *Service) FilterCycles(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]SchoolCycle, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterCycles(ctx, filter, ordering, page)
}

func (svc *Service) UpdateCycle(ctx context.Context, actor user.User, cyc SchoolCycle, uc UpdateCycle) (SchoolCycle, error) {
	if !CanManage(actor, cyc) {
		return SchoolCycle{}, core.ErrPermissionDenied
	}
	if uc.SchoolID != 0 && uc.SchoolID != cyc.SchoolID {
		if err := svc.checkSchool(ctx, uc.SchoolID); err != nil {
			return SchoolCycle{}, err
		}
		cyc.SchoolID = uc.SchoolID
	}
	if uc.PeriodCatalogID.Valid {
		if err := svc.refs.CheckReference(ctx, catalog.PeriodCatalogs, uc.PeriodCatalogID.Int64, "period_catalog_id"); err != nil {
			return SchoolCycle{}, err
		}
		cyc.PeriodCatalogID = uc.PeriodCatalogID
	}
	if uc.Name != "" {
		cyc.Name = uc.Name
	}
	if uc.Year.Valid {
		cyc.Year = uc.Year
	}
	if uc.CycleLabel.Valid {
		cyc.CycleLabel = uc.CycleLabel
	}
	if uc.Grade.Valid {
		cyc.Grade = uc.Grade
	}
	if uc.GroupName.Valid {
		cyc.GroupName = uc.GroupName
	}
	if uc.IsActive != nil {
		cyc.IsActive = *uc.IsActive
	}
	return svc.repo.UpdateCycle(ctx, cyc)
}

// DeleteCycle removes the cycle along with its students, partials, formative fields and everything graded in them.
func (svc *Service) DeleteCycle(ctx context.Context, actor user.User, cyc SchoolCycle) error {
	if !CanManage(actor, cyc) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteCycle(ctx, cyc.ID)
}

// Partials

// CreatePartials creates all the partials in one transaction: either all of them are created or none.
func (svc *Service) CreatePartials(ctx context.Context, actor user.User, cycleID int64, bp BulkPartials) ([]Partial, error) {
	cyc, err := svc.ManageableCycle(ctx, actor, cycleID)
	if err != nil {
		return nil, err
	}

	partials := make([]Partial, 0, len(bp.Partials))
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()
		for _, np := range bp.Partials {
			p, err := svc.repo.CreatePartial(ctx, Partial{
				SchoolCycleID: cyc.ID,
				Name:          np.Name,
				StartDate:     np.StartDate,
				EndDate:       np.EndDate,
				CreatedAt:     now,
			}, tx)
			if err != nil {
				return err
			}
			partials = append(partials, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return partials, nil
}

func (svc *Service) ListPartials(ctx context.Context, cycleID int64) ([]Partial, error) {
	return svc.repo.QueryPartials(ctx, cycleID)
}

func (svc *Service) GetPartial(ctx context.Context, id int64) (Partial, error) {
	return svc.repo.GetPartialByID(ctx, id)
}

func (svc *Service) UpdatePartial(ctx context.Context, actor user.User, p Partial, up UpdatePartial) (Partial, error) {
	if _, err := svc.ManageableCycle(ctx, actor, p.SchoolCycleID); err != nil {
		return Partial{}, err
	}
	if up.Name != "" {
		p.Name = up.Name
	}
	if up.StartDate.Valid {
		p.StartDate = up.StartDate
	}
	if up.EndDate.Valid {
		p.EndDate = up.EndDate
	}
	if err := checkDateRange(p.StartDate, p.EndDate); err != nil {
		return Partial{}, err
	}
	return svc.repo.UpdatePartial(ctx, p)
}

func (svc *Service) DeletePartial(ctx context.Context, actor user.User, p Partial) error {
	if _, err := svc.ManageableCycle(ctx, actor, p.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeletePartial(ctx, p.ID)
}

// Formative fields

func (svc *Service) CreateFormativeField(ctx context.Context, actor user.User, nf NewFormativeField, exec ...core.DBExecutor) (FormativeField, error) {
	cyc, err := svc.ManageableCycle(ctx, actor, nf.SchoolCycleID)
	if err != nil {
		if core.IsNotFound(err) {
			return FormativeField{}, core.NewFieldError("school_cycle_id", "does not exist")
		}
		return FormativeField{}, err
	}
	return svc.repo.CreateFormativeField(ctx, FormativeField{
		SchoolCycleID: cyc.ID,
		Name:          nf.Name,
		Code:          nf.Code,
		CreatedAt:     time.Now().UTC(),
	}, exec...)
}

func (svc *Service) ListFormativeFields(ctx context.Context, cycleID int64) ([]FormativeField, error) {
	return svc.repo.QueryFormativeFields(ctx, cycleID)
}

func (svc *Service) GetFormativeField(ctx context.Context, id int64) (FormativeField, error) {
	return svc.repo.GetFormativeFieldByID(ctx, id)
}

func (svc *Service) UpdateFormativeField(ctx context.Context, actor user.User, ff FormativeField, uf UpdateFormativeField) (FormativeField, error) {
	if _, err := svc.ManageableCycle(ctx, actor, ff.SchoolCycleID); err != nil {
		return FormativeField{}, err
	}
	if uf.Name != "" {
		ff.Name = uf.Name
	}
	if uf.Code.Valid {
		ff.Code = uf.Code
	}
	return svc.repo.UpdateFormativeField(ctx, ff)
}

func (svc *Service) DeleteFormativeField(ctx context.Context, actor user.User, ff FormativeField) error {
	if _, err := svc.ManageableCycle(ctx, actor, ff.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeleteFormativeField(ctx, ff.ID)
}
