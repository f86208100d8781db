// Package inventory keeps Channel stock in line with vendor allocations and
// retires listings the marketplace no longer sells.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/products"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
)

// JobName identifies the inventory sync in the run log and on the command line.
const JobName = "inventory-sync"

const (
	channelOrderSource = "channel"
	defaultBatchSize   = 100
	retireBatchLimit   = 200
)

// Gateway is the slice of the Channel client the inventory sync calls.
type Gateway interface {
	PushInventory(ctx context.Context, updates []channel.InventoryUpdate) (string, error)
	RetireItem(ctx context.Context, sku string) error
}

// ServiceParams wire the inventory sync.
type ServiceParams struct {
	Logger    *logger.Logger
	Gateway   Gateway
	Inventory Repository
	Products  products.Repository
	BatchSize int
	SKUPrefix string
}

// Service computes Channel-available quantities and pushes them in bounded feeds.
type Service struct {
	logg      *logger.Logger
	gateway   Gateway
	inventory Repository
	products  products.Repository
	batchSize int
	skuPrefix string
}

// NewService builds the inventory sync.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("channel gateway required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	size := params.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Service{
		logg:      params.Logger,
		gateway:   params.Gateway,
		inventory: params.Inventory,
		products:  params.Products,
		batchSize: size,
		skuPrefix: params.SKUPrefix,
	}, nil
}

func (s *Service) Name() string { return JobName }

// Run retires delisted products, then pushes available quantities for every
// active listing. A rejected feed batch fails the run; the Channel applies a
// feed all-or-nothing so its SKUs are not reported one by one.
func (s *Service) Run(ctx context.Context) (batch.Summary, error) {
	var summary batch.Summary

	retired, err := s.RetireListings(ctx)
	summary.Merge(retired)
	if err != nil {
		return summary, err
	}

	updates, err := s.Updates(ctx)
	if err != nil {
		return summary, err
	}

	var runErr error
	for n, chunk := range chunks(updates, s.batchSize) {
		key := "inventory-batch-" + strconv.Itoa(n+1)
		batchCtx := s.logg.WithFields(ctx, map[string]any{
			"batch": n + 1,
			"skus":  len(chunk),
		})
		feedID, err := s.gateway.PushInventory(batchCtx, chunk)
		if err != nil {
			s.logg.Error(batchCtx, "inventory feed rejected", err)
			summary.Add(batch.Failed(key, err))
			runErr = multierr.Append(runErr, fmt.Errorf("%s: %w", key, err))
			continue
		}
		s.logg.Info(s.logg.WithField(batchCtx, "feed_id", feedID), "inventory feed submitted")
		summary.Add(batch.Succeeded(key))
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"skus":    len(updates),
		"batches": summary.Processed - retired.Processed,
		"failed":  summary.Failed,
	}), "inventory sync complete")
	return summary, runErr
}

// Updates computes the Channel quantity of every active listing.
func (s *Service) Updates(ctx context.Context) ([]channel.InventoryUpdate, error) {
	rows, err := s.inventory.ListListedAvailability(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channel availability: %w", err)
	}
	updates := make([]channel.InventoryUpdate, 0, len(rows))
	for _, row := range rows {
		updates = append(updates, channel.InventoryUpdate{
			SKU:      channel.ChannelSKU(row.SKU, s.skuPrefix),
			Quantity: row.Available(),
		})
	}
	return updates, nil
}

// RetireListings removes products that are no longer active from the Channel
// and flags them unlisted.
func (s *Service) RetireListings(ctx context.Context) (batch.Summary, error) {
	var summary batch.Summary
	retired, err := s.products.ListRetiredListings(ctx, retireBatchLimit)
	if err != nil {
		return summary, fmt.Errorf("list retired listings: %w", err)
	}
	for _, product := range retired {
		sku := channel.ChannelSKU(product.SKU, s.skuPrefix)
		key := "retire:" + sku
		itemCtx := s.logg.WithField(ctx, "sku", sku)
		if err := s.gateway.RetireItem(itemCtx, sku); err != nil {
			s.logg.Warn(s.logg.WithField(itemCtx, "error", err.Error()), "retire item failed")
			summary.Add(batch.Failed(key, err))
			continue
		}
		if err := s.products.MarkUnlisted(itemCtx, product.ID); err != nil {
			summary.Add(batch.Failed(key, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag product unlisted")))
			continue
		}
		s.logg.Info(itemCtx, "channel listing retired")
		summary.Add(batch.Succeeded(key))
	}
	return summary, nil
}

// SetAllocation records the quantity a vendor sets aside for the Channel.
func (s *Service) SetAllocation(ctx context.Context, vendorStoreID, productID uuid.UUID, qty int) (*models.ChannelInventoryAllocation, error) {
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation must not be negative")
	}
	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if product.StoreID != vendorStoreID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product belongs to another vendor")
	}
	allocation := &models.ChannelInventoryAllocation{
		ProductID:     productID,
		VendorStoreID: vendorStoreID,
		AllocatedQty:  qty,
	}
	if err := s.inventory.UpsertAllocation(ctx, allocation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save allocation")
	}
	return allocation, nil
}

func chunks(updates []channel.InventoryUpdate, size int) [][]channel.InventoryUpdate {
	var out [][]channel.InventoryUpdate
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		out = append(out, updates[start:end])
	}
	return out
}
