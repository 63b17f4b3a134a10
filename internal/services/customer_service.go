package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/glowmane/api/internal/repositories"
)

var (
	// ErrCustomerInvalidInput indicates validation failures for customer operations.
	ErrCustomerInvalidInput = errors.New("customer service: invalid input")
	// ErrCustomerNotFound indicates the customer or address does not exist.
	ErrCustomerNotFound = errors.New("customer service: not found")
	// ErrCustomerUnavailable indicates the customer backend cannot serve the request.
	ErrCustomerUnavailable = errors.New("customer service: unavailable")
)

var (
	addressCountryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	addressPostalPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,10}$`)
	customerPhonePattern  = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
)

// CustomerServiceDeps bundles constructor inputs for the customer service.
type CustomerServiceDeps struct {
	Repository  repositories.CustomerRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type customerService struct {
	repo  repositories.CustomerRepository
	audit AuditLogService
	clock func() time.Time
	newID func() string
}

// NewCustomerService constructs the profile and address service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Repository == nil {
		return nil, errors.New("customer service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &customerService{
		repo:  deps.Repository,
		audit: deps.Audit,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *customerService) Get(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.translateRepoError(err)
	}
	return customer, nil
}

// UpdateProfile mutates only the fields present in the command. Nil pointers
// leave the stored value untouched.
func (s *customerService) UpdateProfile(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.translateRepoError(err)
	}

	diff := make(map[string]AuditLogDiff, 2)
	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > 120 {
			return Customer{}, fmt.Errorf("%w: display name must be 1-120 characters", ErrCustomerInvalidInput)
		}
		if name != customer.DisplayName {
			diff["display_name"] = AuditLogDiff{Before: customer.DisplayName, After: name}
			customer.DisplayName = name
		}
	}
	if cmd.Phone != nil {
		phone := strings.TrimSpace(*cmd.Phone)
		if phone != "" && !customerPhonePattern.MatchString(phone) {
			return Customer{}, fmt.Errorf("%w: phone number is not valid", ErrCustomerInvalidInput)
		}
		if phone != customer.Phone {
			diff["phone"] = AuditLogDiff{Before: customer.Phone, After: phone}
			customer.Phone = phone
		}
	}

	if len(diff) == 0 {
		return customer, nil
	}

	now := s.clock()
	customer.UpdatedAt = now
	updated, err := s.repo.UpdateProfile(ctx, customer)
	if err != nil {
		return Customer{}, s.translateRepoError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:         customerID,
			ActorType:     "customer",
			Action:        "customer.profile_updated",
			TargetRef:     "customers/" + customerID,
			OccurredAt:    now,
			Diff:          diff,
			SensitiveKeys: []string{"phone"},
		})
	}
	return updated, nil
}

func (s *customerService) UpsertAddress(ctx context.Context, customerID string, address Address) (Address, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Address{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	sanitized, err := sanitizeCustomerAddress(address)
	if err != nil {
		return Address{}, err
	}
	if sanitized.ID == "" {
		sanitized.ID = s.newID()
	}

	saved, err := s.repo.UpsertAddress(ctx, customerID, sanitized)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      customerID,
			ActorType:  "customer",
			Action:     "customer.address_upserted",
			TargetRef:  "customers/" + customerID + "/addresses/" + saved.ID,
			OccurredAt: s.clock(),
		})
	}
	return saved, nil
}

func (s *customerService) DeleteAddress(ctx context.Context, customerID string, addressID string) error {
	customerID = strings.TrimSpace(customerID)
	addressID = strings.TrimSpace(addressID)
	if customerID == "" || addressID == "" {
		return fmt.Errorf("%w: customer id and address id are required", ErrCustomerInvalidInput)
	}
	if err := s.repo.DeleteAddress(ctx, customerID, addressID); err != nil {
		return s.translateRepoError(err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      customerID,
			ActorType:  "customer",
			Action:     "customer.address_deleted",
			TargetRef:  "customers/" + customerID + "/addresses/" + addressID,
			OccurredAt: s.clock(),
		})
	}
	return nil
}

func sanitizeCustomerAddress(addr Address) (Address, error) {
	sanitized := Address{
		ID:         strings.TrimSpace(addr.ID),
		Label:      strings.TrimSpace(addr.Label),
		Recipient:  strings.TrimSpace(addr.Recipient),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.TrimSpace(addr.Region),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      strings.TrimSpace(addr.Phone),
		Default:    addr.Default,
	}

	if sanitized.Recipient == "" || utf8.RuneCountInString(sanitized.Recipient) > 200 {
		return Address{}, fmt.Errorf("%w: address recipient must be 1-200 characters", ErrCustomerInvalidInput)
	}
	if sanitized.Line1 == "" {
		return Address{}, fmt.Errorf("%w: address line1 is required", ErrCustomerInvalidInput)
	}
	if sanitized.City == "" {
		return Address{}, fmt.Errorf("%w: address city is required", ErrCustomerInvalidInput)
	}
	if !addressCountryPattern.MatchString(sanitized.Country) {
		return Address{}, fmt.Errorf("%w: country must be a two-letter ISO code", ErrCustomerInvalidInput)
	}
	postal, err := canonicalisePostalCode(sanitized.Country, sanitized.PostalCode)
	if err != nil {
		return Address{}, err
	}
	sanitized.PostalCode = postal
	if sanitized.Phone != "" && !customerPhonePattern.MatchString(sanitized.Phone) {
		return Address{}, fmt.Errorf("%w: address phone is not valid", ErrCustomerInvalidInput)
	}
	return sanitized, nil
}

// canonicalisePostalCode enforces the dashed NNNN-NNN shape for Portuguese
// codes and a permissive alphanumeric pattern elsewhere.
func canonicalisePostalCode(country, postal string) (string, error) {
	trimmed := strings.TrimSpace(postal)
	if trimmed == "" {
		return "", fmt.Errorf("%w: postal code is required", ErrCustomerInvalidInput)
	}
	switch country {
	case "PT":
		digits := strings.ReplaceAll(strings.ReplaceAll(trimmed, "-", ""), " ", "")
		if len(digits) != 7 || !allDigits(digits) {
			return "", fmt.Errorf("%w: postal code must match NNNN-NNN", ErrCustomerInvalidInput)
		}
		return digits[:4] + "-" + digits[4:], nil
	default:
		if !addressPostalPattern.MatchString(trimmed) {
			return "", fmt.Errorf("%w: postal code is not valid", ErrCustomerInvalidInput)
		}
		return trimmed, nil
	}
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *customerService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCustomerNotFound, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCustomerUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrCustomerUnavailable, err.Error())
}
