package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/identity-store/internal/model"
)

// TokenManager is a mock implementation of model.TokenManager.
type TokenManager struct {
	mock.Mock
}

var _ model.TokenManager = (*TokenManager)(nil)

// NewTokenManager creates a TokenManager mock and asserts its expectations on cleanup.
func NewTokenManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenManager {
	m := &TokenManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TokenManager) GenerateSessionToken(id model.UserID) (string, error) {
	ret := m.Called(id)
	return ret.String(0), ret.Error(1)
}

func (m *TokenManager) ParseSessionToken(token string) (model.UserID, error) {
	ret := m.Called(token)
	return ret.Get(0).(model.UserID), ret.Error(1)
}
