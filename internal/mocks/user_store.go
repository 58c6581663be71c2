package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/identity-store/internal/model"
)

// UserStore is a mock implementation of model.UserStore.
type UserStore struct {
	mock.Mock
}

var _ model.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore mock and asserts its expectations on cleanup.
func NewUserStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *UserStore {
	m := &UserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *UserStore) FindByID(ctx context.Context, id model.UserID) (model.User, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) FindByEmail(ctx context.Context, email string) (model.User, error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) FindByEmailToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	ret := m.Called(ctx, token, now)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) FindByProvider(ctx context.Context, provider, accountID string) (model.User, error) {
	ret := m.Called(ctx, provider, accountID)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	ret := m.Called(ctx, user)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) Replace(ctx context.Context, user model.User) (model.User, error) {
	ret := m.Called(ctx, user)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) Delete(ctx context.Context, id model.UserID) (bool, error) {
	ret := m.Called(ctx, id)
	return ret.Bool(0), ret.Error(1)
}

func (m *UserStore) RedeemEmailToken(ctx context.Context, token string, verifiedAt time.Time) (model.User, error) {
	ret := m.Called(ctx, token, verifiedAt)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) List(ctx context.Context, params model.ListParams) (model.UserPage, error) {
	ret := m.Called(ctx, params)
	return ret.Get(0).(model.UserPage), ret.Error(1)
}
