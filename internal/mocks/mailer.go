package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/identity-store/internal/model"
)

// Mailer is a mock implementation of model.Mailer.
type Mailer struct {
	mock.Mock
}

var _ model.Mailer = (*Mailer)(nil)

// NewMailer creates a Mailer mock and asserts its expectations on cleanup.
func NewMailer(t interface {
	mock.TestingT
	Cleanup(func())
}) *Mailer {
	m := &Mailer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Mailer) Send(ctx context.Context, mail model.Mail) error {
	return m.Called(ctx, mail).Error(0)
}

// ProfileArchive is a mock implementation of model.ProfileArchive.
type ProfileArchive struct {
	mock.Mock
}

var _ model.ProfileArchive = (*ProfileArchive)(nil)

// NewProfileArchive creates a ProfileArchive mock and asserts its expectations on cleanup.
func NewProfileArchive(t interface {
	mock.TestingT
	Cleanup(func())
}) *ProfileArchive {
	m := &ProfileArchive{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ProfileArchive) Upload(ctx context.Context, key string, reader io.Reader) error {
	return m.Called(ctx, key, reader).Error(0)
}

func (m *ProfileArchive) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
