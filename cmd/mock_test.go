package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/internal/store"
)

// --- Report Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, address string) (*model.ComplianceReport, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ComplianceReport), args.Error(1)
}

// --- Vendor Finder Mock ---

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindWithRadius(ctx context.Context, address string, snap model.ViolationSnapshot, radiusMiles float64) (*model.VendorSearchResult, error) {
	args := m.Called(ctx, address, snap, radiusMiles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendorSearchResult), args.Error(1)
}

// --- Store Mock ---

type mockAPIStore struct {
	mock.Mock
}

func (m *mockAPIStore) GetReport(ctx context.Context, id string) (*model.ComplianceReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ComplianceReport), args.Error(1)
}

func (m *mockAPIStore) ListReports(ctx context.Context, filter store.ReportFilter) ([]model.ComplianceReport, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ComplianceReport), args.Error(1)
}

func (m *mockAPIStore) CreateVendorRequest(ctx context.Context, req model.VendorRequest) (*model.VendorRequest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendorRequest), args.Error(1)
}

func (m *mockAPIStore) UpdateVendorRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockAPIStore) ListVendorRequests(ctx context.Context, address string) ([]model.VendorRequest, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VendorRequest), args.Error(1)
}
