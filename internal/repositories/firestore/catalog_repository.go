package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/exambook-store/api/internal/domain"
	pfirestore "github.com/exambook-store/api/internal/platform/firestore"
	"github.com/exambook-store/api/internal/repositories"
)

// TestSeriesRepository reads testSeries/{id}.
type TestSeriesRepository struct {
	provider *pfirestore.Provider
	series   *pfirestore.Collection[testSeriesDocument]
}

var _ repositories.TestSeriesRepository = (*TestSeriesRepository)(nil)

// NewTestSeriesRepository constructs a Firestore-backed test series repository.
func NewTestSeriesRepository(provider *pfirestore.Provider) (*TestSeriesRepository, error) {
	if provider == nil {
		return nil, errors.New("test series repository requires firestore provider")
	}
	return &TestSeriesRepository{
		provider: provider,
		series:   pfirestore.NewCollection[testSeriesDocument](provider, testSeriesCollection),
	}, nil
}

func (r *TestSeriesRepository) Get(ctx context.Context, id string) (domain.TestSeries, error) {
	doc, err := r.series.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.TestSeries{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *TestSeriesRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.TestSeries, error) {
	result := make(map[string]domain.TestSeries, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := r.series.Ref(ctx, strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("testSeries.getAll", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := r.series.Decode(snap)
		if err != nil {
			return nil, err
		}
		result[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

func (r *TestSeriesRepository) List(ctx context.Context, exam string, activeOnly bool) ([]domain.TestSeries, error) {
	docs, err := r.series.List(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("isActive", "==", true)
		}
		if exam = strings.TrimSpace(exam); exam != "" {
			q = q.Where("exam", "==", exam)
		}
		return q.OrderBy("title", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.TestSeries, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// CouponRepository stores coupons/{CODE}.
type CouponRepository struct {
	coupons *pfirestore.Collection[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{coupons: pfirestore.NewCollection[couponDocument](provider, couponsCollection)}, nil
}

// Get looks up a coupon; codes are stored upper-case.
func (r *CouponRepository) Get(ctx context.Context, code string) (domain.Coupon, error) {
	doc, err := r.coupons.Get(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CouponRepository) Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	doc := newCouponDocument(coupon)
	if err := doc.Validate(); err != nil {
		return domain.Coupon{}, err
	}
	if err := r.coupons.Set(ctx, coupon.Code, doc); err != nil {
		return domain.Coupon{}, err
	}
	return doc.toDomain(coupon.Code), nil
}

// UserRepository reads users/{uid}.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{users: pfirestore.NewCollection[userDocument](provider, usersCollection)}, nil
}

func (r *UserRepository) Get(ctx context.Context, uid string) (domain.UserProfile, error) {
	doc, err := r.users.Get(ctx, strings.TrimSpace(uid))
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}
