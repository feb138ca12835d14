package recommender

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/merchantry/affinity/pkg/models"
)

// Mapping converts the storefront's sparse UUID identifiers into the dense
// codes the training pipeline needs, and retains the reverse direction for
// serving. Codes are only meaningful within the Mapping instance that issued
// them; a rebuild over changed data may assign them differently, so they are
// never persisted or compared across rebuilds.
//
// Product and category codes are 1-based in insertion order; category code 0
// is the "no category" sentinel. User codes are 1-based floats, matching the
// numeric feature the model consumes.
type Mapping struct {
	tenantID uuid.UUID

	userCodes     map[uuid.UUID]float64
	productCodes  map[uuid.UUID]int
	categoryCodes map[uuid.UUID]int

	// productCategory maps product code -> category code (0 when the product
	// has no category).
	productCategory map[int]int

	// productsByCode maps product code back to the catalog entity.
	productsByCode map[int]models.Product

	// catalog is every product of the tenant in stable order; the candidate
	// set for scoring.
	catalog []models.Product

	// purchases maps user id -> set of purchased product ids.
	purchases map[uuid.UUID]map[uuid.UUID]bool
}

// UserCount returns the number of distinct purchasing users.
func (m *Mapping) UserCount() int { return len(m.userCodes) }

// ProductCount returns the number of products with an assigned code.
func (m *Mapping) ProductCount() int { return len(m.productCodes) }

// CategoryCount returns the number of categories with an assigned code,
// excluding the sentinel.
func (m *Mapping) CategoryCount() int { return len(m.categoryCodes) }

// HasPurchased reports whether the user has ever bought the product.
func (m *Mapping) HasPurchased(userID, productID uuid.UUID) bool {
	return m.purchases[userID][productID]
}

func (m *Mapping) userCode(userID uuid.UUID) (float64, bool) {
	code, ok := m.userCodes[userID]
	return code, ok
}

func (m *Mapping) productCode(productID uuid.UUID) (int, bool) {
	code, ok := m.productCodes[productID]
	return code, ok
}

// categoryCodeFor returns the category code for a product code, 0 when
// unmapped.
func (m *Mapping) categoryCodeFor(productCode int) int {
	return m.productCategory[productCode]
}

// loadMapping reads the tenant's purchase history and catalog and builds a
// fresh Mapping. A tenant with no purchased products is a cold start: the
// result is (nil, nil), which callers must treat as "no recommendations", not
// as a failure.
func (s *Service) loadMapping(ctx context.Context, tenantID uuid.UUID) (*Mapping, error) {
	lines, err := s.repos.Orders.PurchaseLinesForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase history: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	m := &Mapping{
		tenantID:        tenantID,
		userCodes:       make(map[uuid.UUID]float64),
		productCodes:    make(map[uuid.UUID]int),
		categoryCodes:   make(map[uuid.UUID]int),
		productCategory: make(map[int]int),
		productsByCode:  make(map[int]models.Product),
		purchases:       make(map[uuid.UUID]map[uuid.UUID]bool),
	}

	// Purchased products and their categories first, in purchase order, so a
	// rebuild over unchanged data assigns identical codes.
	for _, line := range lines {
		if _, ok := m.productCodes[line.ProductID]; !ok {
			m.productCodes[line.ProductID] = len(m.productCodes) + 1
		}
		code := m.productCodes[line.ProductID]

		if line.CategoryID != nil {
			if _, ok := m.categoryCodes[*line.CategoryID]; !ok {
				m.categoryCodes[*line.CategoryID] = len(m.categoryCodes) + 1
			}
			m.productCategory[code] = m.categoryCodes[*line.CategoryID]
		}

		if _, ok := m.userCodes[line.UserID]; !ok {
			m.userCodes[line.UserID] = float64(len(m.userCodes) + 1)
		}

		if m.purchases[line.UserID] == nil {
			m.purchases[line.UserID] = make(map[uuid.UUID]bool)
		}
		m.purchases[line.UserID][line.ProductID] = true
	}

	// The rest of the catalog gets codes too: unpurchased products are the
	// negative examples during training and the candidate set during serving.
	products, err := s.repos.Products.ProductsForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, p := range products {
		if _, ok := m.productCodes[p.ID]; !ok {
			m.productCodes[p.ID] = len(m.productCodes) + 1
			if p.CategoryID != nil {
				if _, ok := m.categoryCodes[*p.CategoryID]; !ok {
					m.categoryCodes[*p.CategoryID] = len(m.categoryCodes) + 1
				}
				m.productCategory[m.productCodes[p.ID]] = m.categoryCodes[*p.CategoryID]
			}
		}
		m.productsByCode[m.productCodes[p.ID]] = p
	}
	m.catalog = products

	return m, nil
}

// trainingData expands the mapping into labeled examples: one positive per
// observed (user, purchased product) pair, one negative per (user, catalog
// product) pair never observed for that user. An empty dataset is a valid
// value, not an error.
func trainingData(m *Mapping) *Dataset {
	if m == nil {
		return &Dataset{}
	}
	ds := &Dataset{
		UserCount:     m.UserCount(),
		ProductCount:  m.ProductCount(),
		CategoryCount: m.CategoryCount(),
	}

	// Users in code order keeps the example sequence, and with it the fitted
	// parameters, reproducible across retrains over unchanged data.
	users := make([]uuid.UUID, 0, len(m.userCodes))
	for userID := range m.userCodes {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool {
		return m.userCodes[users[i]] < m.userCodes[users[j]]
	})

	for _, userID := range users {
		userCode := m.userCodes[userID]
		bought := m.purchases[userID]
		for _, p := range m.catalog {
			code, ok := m.productCodes[p.ID]
			if !ok {
				continue
			}
			ds.Examples = append(ds.Examples, Example{
				User:     userCode,
				Product:  code,
				Category: m.categoryCodeFor(code),
				Label:    bought[p.ID],
			})
		}
	}

	return ds
}
