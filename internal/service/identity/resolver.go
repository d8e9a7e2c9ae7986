// Package identity decides which customer account owns a checkout.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"go.uber.org/zap"
)

// ErrUnknownCustomer is returned when the session names a customer that does
// not exist in the project.
var ErrUnknownCustomer = errors.New("session customer not found")

type customerRepo interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error)
	GetByPhone(ctx context.Context, projectID, phone string) (*domain.Customer, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error)
}

// Contact is what a guest typed at checkout. Phone is expected in E.164.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Result names the owning customer.
type Result struct {
	CustomerID string
	// Guest is set when no authenticated session placed the order.
	Guest bool
	// Created is set when a new guest account was made for this checkout.
	Created bool
}

type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logging.OrNop(logger)}
}

// Resolve returns the session customer, else an existing account matching
// the contact email or phone, else a new guest account. customers must be
// bound to the checkout transaction so a failed order leaves no account.
func (r *Resolver) Resolve(ctx context.Context, customers customerRepo, projectID, sessionCustomerID string, contact Contact) (Result, error) {
	if sessionCustomerID != "" {
		c, err := customers.GetByID(ctx, projectID, sessionCustomerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Result{}, ErrUnknownCustomer
			}
			return Result{}, fmt.Errorf("load session customer: %w", err)
		}
		return Result{CustomerID: c.ID}, nil
	}

	email := strings.ToLower(strings.TrimSpace(contact.Email))
	if email != "" {
		c, err := customers.GetByEmail(ctx, projectID, email)
		if err == nil {
			r.logger.Debug("guest matched by email", zap.String("customer_id", c.ID))
			return Result{CustomerID: c.ID, Guest: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("match by email: %w", err)
		}
	}
	if contact.Phone != "" {
		c, err := customers.GetByPhone(ctx, projectID, contact.Phone)
		if err == nil {
			r.logger.Debug("guest matched by phone", zap.String("customer_id", c.ID))
			return Result{CustomerID: c.ID, Guest: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("match by phone: %w", err)
		}
	}

	guest := domain.Customer{ProjectID: projectID, Name: strings.TrimSpace(contact.Name), IsGuest: true}
	if email != "" {
		guest.Email = &email
	}
	if contact.Phone != "" {
		phone := contact.Phone
		guest.Phone = &phone
	}
	c, err := customers.Create(ctx, guest)
	if err != nil {
		return Result{}, fmt.Errorf("create guest customer: %w", err)
	}
	r.logger.Info("guest customer created", zap.String("customer_id", c.ID), zap.String("project_id", projectID))
	return Result{CustomerID: c.ID, Guest: true, Created: true}, nil
}
