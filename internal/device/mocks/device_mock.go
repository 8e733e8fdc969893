package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// DeviceMock is a testify mock satisfying device.Device.
type DeviceMock struct {
	mock.Mock
}

func (d *DeviceMock) Status(ctx context.Context) (string, error) {
	args := d.Called(ctx)
	return args.String(0), args.Error(1)
}

func (d *DeviceMock) BagLength(ctx context.Context) (int, error) {
	args := d.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (d *DeviceMock) Speed(ctx context.Context) (int, error) {
	args := d.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (d *DeviceMock) SetBagLength(ctx context.Context, value int) error {
	args := d.Called(ctx, value)
	return args.Error(0)
}

func (d *DeviceMock) SetSpeed(ctx context.Context, value int) error {
	args := d.Called(ctx, value)
	return args.Error(0)
}

func (d *DeviceMock) Start(ctx context.Context) error {
	args := d.Called(ctx)
	return args.Error(0)
}

func (d *DeviceMock) Stop(ctx context.Context) error {
	args := d.Called(ctx)
	return args.Error(0)
}
