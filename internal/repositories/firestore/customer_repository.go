package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const customerCollection = "customers"

// CustomerRepository stores customer profiles and their saved addresses.
type CustomerRepository struct {
	base     *pfirestore.BaseRepository[customerDocument]
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customerCollection, nil, nil)
	return &CustomerRepository{
		base:     base,
		provider: provider,
	}, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return decodeCustomer(doc.ID, doc.Data), nil
}

// UpdateProfile writes the mutable profile fields, preserving stored addresses.
func (r *CustomerRepository) UpdateProfile(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}

	updates := []firestore.Update{
		{Path: "displayName", Value: customer.DisplayName},
		{Path: "phone", Value: customer.Phone},
		{Path: "updatedAt", Value: customer.UpdatedAt.UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Customer{}, err
	}
	return r.FindByID(ctx, id)
}

// UpsertAddress adds or replaces one saved address inside a transaction. A
// default address clears the flag on every other entry.
func (r *CustomerRepository) UpsertAddress(ctx context.Context, customerID string, address domain.Address) (domain.Address, error) {
	if r == nil || r.provider == nil {
		return domain.Address{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Address{}, errors.New("customer repository: customer id is required")
	}
	if strings.TrimSpace(address.ID) == "" {
		return domain.Address{}, errors.New("customer repository: address id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc customerDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode customer %s: %w", id, err)
		}

		entry := encodeCustomerAddress(address)
		replaced := false
		for i := range doc.Addresses {
			if doc.Addresses[i].ID == entry.ID {
				doc.Addresses[i] = entry
				replaced = true
				continue
			}
			if entry.Default {
				doc.Addresses[i].Default = false
			}
		}
		if !replaced {
			doc.Addresses = append(doc.Addresses, entry)
		}
		doc.UpdatedAt = time.Now().UTC()

		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("customers.upsert_address", err)
	}
	return address, nil
}

// DeleteAddress removes one saved address. A missing address is not found.
func (r *CustomerRepository) DeleteAddress(ctx context.Context, customerID string, addressID string) error {
	if r == nil || r.provider == nil {
		return errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	target := strings.TrimSpace(addressID)
	if id == "" || target == "" {
		return errors.New("customer repository: customer id and address id are required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc customerDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode customer %s: %w", id, err)
		}

		kept := doc.Addresses[:0]
		found := false
		for _, addr := range doc.Addresses {
			if addr.ID == target {
				found = true
				continue
			}
			kept = append(kept, addr)
		}
		if !found {
			return status.Errorf(codes.NotFound, "address %s not found", target)
		}
		doc.Addresses = kept
		doc.UpdatedAt = time.Now().UTC()

		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("customers.delete_address", err)
	}
	return nil
}

func encodeCustomerAddress(addr domain.Address) customerAddressDocument {
	return customerAddressDocument{
		ID:         addr.ID,
		Label:      addr.Label,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
		Default:    addr.Default,
	}
}

func decodeCustomer(id string, doc customerDocument) domain.Customer {
	customer := domain.Customer{
		ID:          id,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Phone:       doc.Phone,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, addr := range doc.Addresses {
		customer.Addresses = append(customer.Addresses, domain.Address{
			ID:         addr.ID,
			Label:      addr.Label,
			Recipient:  addr.Recipient,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			Region:     addr.Region,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
			Default:    addr.Default,
		})
	}
	return customer
}

type customerDocument struct {
	Email       string                    `firestore:"email"`
	DisplayName string                    `firestore:"displayName,omitempty"`
	Phone       string                    `firestore:"phone,omitempty"`
	Addresses   []customerAddressDocument `firestore:"addresses,omitempty"`
	CreatedAt   time.Time                 `firestore:"createdAt"`
	UpdatedAt   time.Time                 `firestore:"updatedAt"`
}

type customerAddressDocument struct {
	ID         string `firestore:"id"`
	Label      string `firestore:"label,omitempty"`
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	Region     string `firestore:"region,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
	Default    bool   `firestore:"default,omitempty"`
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
