package domain

import "time"

// Pagination carries cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Page is a slice of results plus the token for the next page, empty when exhausted.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// ItemKind distinguishes shippable books from digital test series.
type ItemKind string

const (
	// ItemKindBook is a physical, stock-bearing book.
	ItemKindBook ItemKind = "book"
	// ItemKindTestSeries is a digital product with no stock or weight.
	ItemKindTestSeries ItemKind = "test_series"
)

// IsDigital reports whether the item skips stock checks and shipping weight.
func (k ItemKind) IsDigital() bool { return k == ItemKindTestSeries }

// Book is a catalog entry. StockQuantity never goes negative.
type Book struct {
	ID            string
	Title         string
	Author        string
	Slug          string
	Description   string
	Category      string
	Exam          string
	Price         int64
	OriginalPrice int64
	StockQuantity int
	WeightGrams   int
	CoverImage    string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InStock reports whether at least qty copies are available.
func (b Book) InStock(qty int) bool { return b.StockQuantity >= qty }

// TestSeries is a digital mock-test bundle sold next to books.
type TestSeries struct {
	ID            string
	Title         string
	Slug          string
	Exam          string
	Price         int64
	OriginalPrice int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Category   string
	Exam       string
	ActiveOnly bool
	Pagination Pagination
}

// Address is a shipping address in India.
type Address struct {
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Pincode string
}

// UserRole tags the account type stored on a user profile.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleGuest    UserRole = "guest"
	UserRoleAdmin    UserRole = "admin"
)

// UserProfile is the users/{uid} document maintained by checkout.
type UserProfile struct {
	UID            string
	Name           string
	Email          string
	Phone          string
	Role           UserRole
	DefaultAddress *Address
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CartItem is a line in a cart. Quantity is at least 1.
type CartItem struct {
	BookID        string
	Kind          ItemKind
	Title         string
	Author        string
	Price         int64
	OriginalPrice int64
	Image         string
	Quantity      int
	Slug          string
	WeightGrams   int
}

// LineTotal is price times quantity.
func (i CartItem) LineTotal() int64 { return i.Price * int64(i.Quantity) }

// HealthStatus summarises a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the outcome of probing one dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for /readyz.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
