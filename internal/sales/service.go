package sales

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganacsi/ganacsi/internal/shared"
)

const idempotencyModule = "sales.create"

// RepositoryPort defines persistence behaviour required by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (*Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// IdempotencyStore deduplicates create requests per tenant.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key shared.IdempotencyKey) (int64, bool, error)
	Complete(ctx context.Context, key shared.IdempotencyKey, refID int64) error
	Release(ctx context.Context, key shared.IdempotencyKey) error
}

// TransitionObserver is notified after a transition commits.
type TransitionObserver interface {
	ObserveSaleTransition(action, from, to string)
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Effects     Effects
	Cache       *Cache
	Idempotency IdempotencyStore
	Observer    TransitionObserver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service orchestrates the sale lifecycle.
type Service struct {
	repo     RepositoryPort
	effects  Effects
	cache    *Cache
	idem     IdempotencyStore
	observer TransitionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	svc := &Service{
		repo:     repo,
		effects:  cfg.Effects,
		cache:    cfg.Cache,
		idem:     cfg.Idempotency,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if svc.effects == nil {
		svc.effects = DefaultEffects()
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// ============================================================================
// READS
// ============================================================================

// Get returns a sale of the actor's company.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*Sale, error) {
	key, err := s.cache.BuildKey(ctx, actor.CompanyID, saleKey(id)...)
	if err != nil {
		s.logger.Warn("sales cache unavailable", slog.Any("error", err))
		return s.repo.Get(ctx, actor.CompanyID, id)
	}
	var sale Sale
	err = s.cache.FetchJSON(ctx, key, &sale, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, actor.CompanyID, id)
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListResult is one page of sales.
type ListResult struct {
	Sales []Sale `json:"sales"`
	Total int    `json:"total"`
}

// List returns sales of the actor's company, newest first.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) (ListResult, error) {
	filter.CompanyID = actor.CompanyID
	if filter.Status != nil && !filter.Status.IsValid() {
		return ListResult{}, ValidationErrors{{Kind: KindInvalidField, Field: "status", Message: "unknown status"}}
	}
	load := func(ctx context.Context) (any, error) {
		sales, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return ListResult{Sales: sales, Total: total}, nil
	}

	key, err := s.cache.BuildKey(ctx, actor.CompanyID, listKey(filter)...)
	if err != nil {
		s.logger.Warn("sales cache unavailable", slog.Any("error", err))
		value, err := load(ctx)
		if err != nil {
			return ListResult{}, err
		}
		return value.(ListResult), nil
	}
	var result ListResult
	if err := s.cache.FetchJSON(ctx, key, &result, load); err != nil {
		return ListResult{}, err
	}
	return result, nil
}

// ============================================================================
// WRITES
// ============================================================================

// Create validates the payload and stores a new draft. A non-empty
// idempotency key replays the sale created by an earlier identical request
// of the same company.
func (s *Service) Create(ctx context.Context, actor Actor, payload Payload, idempotencyKey string) (*Sale, error) {
	payload, err := ValidatePayload(payload)
	if err != nil {
		return nil, err
	}

	useKey := idempotencyKey != "" && s.idem != nil
	var key shared.IdempotencyKey
	if useKey {
		key, err = createKey(actor, idempotencyKey, payload)
		if err != nil {
			return nil, err
		}
		refID, replay, err := s.idem.Reserve(ctx, key)
		if err != nil {
			return nil, err
		}
		if replay {
			return s.repo.Get(ctx, actor.CompanyID, refID)
		}
	}

	sale := NewSale(actor, payload)
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkReferences(ctx, tx, actor.CompanyID, payload); err != nil {
			return err
		}
		var err error
		id, err = tx.Insert(ctx, &sale)
		return err
	})
	if err != nil {
		if useKey {
			if relErr := s.idem.Release(ctx, key); relErr != nil {
				s.logger.Error("release idempotency key", slog.Any("error", relErr))
			}
		}
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			return nil, verrs
		}
		return nil, fmt.Errorf("create sale: %w", err)
	}
	if useKey {
		if err := s.idem.Complete(ctx, key, id); err != nil {
			s.logger.Error("complete idempotency key", slog.Any("error", err), slog.Int64("sale_id", id))
		}
	}

	s.invalidate(ctx, actor.CompanyID)
	return s.repo.Get(ctx, actor.CompanyID, id)
}

func createKey(actor Actor, key string, payload Payload) (shared.IdempotencyKey, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return shared.IdempotencyKey{}, fmt.Errorf("fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(body)
	return shared.IdempotencyKey{
		CompanyID:   actor.CompanyID,
		Module:      idempotencyModule,
		Key:         key,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

// checkReferences verifies that the customer, the account and every line
// item product belong to companyID.
func checkReferences(ctx context.Context, tx TxRepository, companyID int64, p Payload) error {
	productIDs := make([]int64, 0, len(p.Items))
	for _, item := range p.Items {
		productIDs = append(productIDs, int64(item.ProductID))
	}
	refs, err := tx.FindReferences(ctx, companyID, int64(p.CustomerID), int64(p.AccountID), productIDs)
	if err != nil {
		return err
	}
	var errs ValidationErrors
	if !refs.Customer {
		errs = append(errs, ValidationError{Kind: KindMissingReference, Field: "customer_id", Message: "does not exist"})
	}
	if !refs.Account {
		errs = append(errs, ValidationError{Kind: KindMissingReference, Field: "account_id", Message: "does not exist"})
	}
	for i, item := range p.Items {
		if !refs.Products[int64(item.ProductID)] {
			idx := i
			errs = append(errs, ValidationError{Kind: KindInvalidLineItem, Field: "product_id", Index: &idx, Message: "is not a selectable product"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Update replaces every editable field of a draft sale.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, payload Payload) (*Sale, error) {
	payload, err := ValidatePayload(payload)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if !current.Status.CanEdit() {
			return fmt.Errorf("%w: %s sale cannot be edited", ErrInvalidStatus, current.Status)
		}
		if err := checkReferences(ctx, tx, actor.CompanyID, payload); err != nil {
			return err
		}
		next := NewSale(actor, payload)
		next.ID = id
		next.CreatedBy = current.CreatedBy
		return tx.Replace(ctx, &next)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, actor.CompanyID)
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Confirm moves a draft to confirmed.
func (s *Service) Confirm(ctx context.Context, actor Actor, id int64) (*Sale, error) {
	return s.transition(ctx, actor, id, ActionConfirm, nil)
}

// Cancel moves a draft or confirmed sale to cancelled.
func (s *Service) Cancel(ctx context.Context, actor Actor, id int64) (*Sale, error) {
	return s.transition(ctx, actor, id, ActionCancel, nil)
}

// Deliver moves a confirmed sale to delivered. A nil date means now.
func (s *Service) Deliver(ctx context.Context, actor Actor, id int64, deliveryDate *time.Time) (*Sale, error) {
	return s.transition(ctx, actor, id, ActionDeliver, deliveryDate)
}

// Delete removes a sale regardless of status. Deleting a confirmed sale
// returns its items to stock.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		from = current.Status
		if err := tx.Delete(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		err = s.effects.Apply(ctx, tx, Transition{
			Sale:    *current,
			Action:  ActionDelete,
			From:    from,
			ActorID: actor.UserID,
			At:      s.now(),
		})
		if err != nil {
			return fmt.Errorf("apply delete effects: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.observe(ActionDelete, from, "")
	s.invalidate(ctx, actor.CompanyID)
	s.logger.Info("sale deleted",
		slog.Int64("sale_id", id),
		slog.Int64("company_id", actor.CompanyID),
		slog.String("from", string(from)))
	return nil
}

func (s *Service) transition(ctx context.Context, actor Actor, id int64, action Action, deliveryDate *time.Time) (*Sale, error) {
	target, ok := action.Target()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a status transition", ErrInvalidStatus, action)
	}

	var from Status
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetForUpdate(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if sale.Status == target {
			return nil
		}
		if !sale.Status.Allows(action) {
			return fmt.Errorf("%w: cannot %s a %s sale", ErrInvalidStatus, action, sale.Status)
		}

		from = sale.Status
		now := s.now()
		var date *time.Time
		if action == ActionDeliver {
			date = &now
			if deliveryDate != nil {
				date = deliveryDate
			}
		}
		if err := tx.UpdateStatus(ctx, actor.CompanyID, id, target, date); err != nil {
			return err
		}
		sale.Status = target
		if date != nil {
			sale.DeliveryDate = date
		}
		err = s.effects.Apply(ctx, tx, Transition{
			Sale:    *sale,
			Action:  action,
			From:    from,
			To:      target,
			ActorID: actor.UserID,
			At:      now,
		})
		if err != nil {
			return fmt.Errorf("apply %s effects: %w", action, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.observe(action, from, target)
		s.invalidate(ctx, actor.CompanyID)
		s.logger.Info("sale transitioned",
			slog.Int64("sale_id", id),
			slog.Int64("company_id", actor.CompanyID),
			slog.String("from", string(from)),
			slog.String("to", string(target)))
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

func (s *Service) observe(action Action, from, to Status) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveSaleTransition(string(action), string(from), string(to))
}

func (s *Service) invalidate(ctx context.Context, companyID int64) {
	if err := s.cache.Bump(ctx, companyID); err != nil {
		s.logger.Warn("bump sales cache", slog.Any("error", err), slog.Int64("company_id", companyID))
	}
}
