package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assetcycle/internal/creative"
	"assetcycle/internal/platform"
)

// FakePlatform is an in-memory ad platform. Hooks let tests inject the
// failure modes the executor must survive.
type FakePlatform struct {
	mu          sync.Mutex
	enabled     map[string]bool
	ads         map[string]*platform.AdCollection
	adsByID     map[string]*platform.AdCollection
	performance map[string][]platform.PerformanceRow
	queryErrs   map[string]error
	reads       map[string]int
	mutations   map[string]int
	created     int

	// ReadFilter rewrites what a read returns without touching stored state.
	// mutations counts successful writes to the ad so far.
	ReadFilter func(c platform.AdCollection, mutations int) platform.AdCollection
	// AfterRead runs after every collection read, outside the lock.
	AfterRead func(adID string, reads int)
	// RejectMutation may veto a write before it is applied.
	RejectMutation func(adID string, field creative.AssetType, refs []creative.Ref) error
	// CreateErr fails every CreateAsset call when set.
	CreateErr error
}

var _ platform.Client = (*FakePlatform)(nil)

// NewFakePlatform returns an empty fake.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		enabled:     make(map[string]bool),
		ads:         make(map[string]*platform.AdCollection),
		adsByID:     make(map[string]*platform.AdCollection),
		performance: make(map[string][]platform.PerformanceRow),
		queryErrs:   make(map[string]error),
		reads:       make(map[string]int),
		mutations:   make(map[string]int),
	}
}

func cloneCollection(c platform.AdCollection) platform.AdCollection {
	out := c
	for _, t := range creative.AllTypes() {
		out = out.WithRefs(t, c.Refs(t))
	}
	return out
}

func adKey(campaignID, adGroupID string) string {
	return campaignID + "/" + adGroupID
}

// AddAd registers an enabled campaign's ad group with the given collection.
func (f *FakePlatform) AddAd(collection platform.AdCollection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := cloneCollection(collection)
	f.ads[adKey(collection.CampaignID, collection.AdGroupID)] = &stored
	f.adsByID[collection.AdID] = &stored
	if _, ok := f.enabled[collection.CampaignID]; !ok {
		f.enabled[collection.CampaignID] = true
	}
}

// SetRefs edits one field of a stored ad directly, as another user would.
func (f *FakePlatform) SetRefs(adID string, t creative.AssetType, refs []creative.Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ad, ok := f.adsByID[adID]; ok {
		*ad = ad.WithRefs(t, refs)
	}
}

// SetCampaignEnabled toggles a campaign's serving status.
func (f *FakePlatform) SetCampaignEnabled(campaignID string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[campaignID] = enabled
}

// SetPerformance replaces the rows returned for a campaign.
func (f *FakePlatform) SetPerformance(campaignID string, rows ...platform.PerformanceRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performance[campaignID] = append([]platform.PerformanceRow(nil), rows...)
}

// FailQuery makes performance queries for a campaign return err.
func (f *FakePlatform) FailQuery(campaignID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErrs[campaignID] = err
}

// Collection returns the stored collection of an ad.
func (f *FakePlatform) Collection(adID string) platform.AdCollection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ad, ok := f.adsByID[adID]; ok {
		return cloneCollection(*ad)
	}
	return platform.AdCollection{}
}

// Mutations reports how many writes were applied to an ad.
func (f *FakePlatform) Mutations(adID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations[adID]
}

// Created reports how many assets were created.
func (f *FakePlatform) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *FakePlatform) QueryAssetPerformance(ctx context.Context, campaignID string, windowDays int) ([]platform.PerformanceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.queryErrs[campaignID]; err != nil {
		return nil, err
	}
	return append([]platform.PerformanceRow(nil), f.performance[campaignID]...), nil
}

func (f *FakePlatform) GetAdAssetCollection(ctx context.Context, campaignID, adGroupID string) (platform.AdCollection, error) {
	f.mu.Lock()
	ad, ok := f.ads[adKey(campaignID, adGroupID)]
	if !ok {
		f.mu.Unlock()
		return platform.AdCollection{}, &platform.Error{Op: "get ad asset collection", Message: adKey(campaignID, adGroupID), Err: platform.ErrNotFound}
	}
	out := cloneCollection(*ad)
	f.reads[ad.AdID]++
	reads := f.reads[ad.AdID]
	if f.ReadFilter != nil {
		out = f.ReadFilter(out, f.mutations[ad.AdID])
	}
	hook := f.AfterRead
	f.mu.Unlock()

	if hook != nil {
		hook(out.AdID, reads)
	}
	return out, nil
}

func (f *FakePlatform) MutateAdAssets(ctx context.Context, adID string, field creative.AssetType, refs []creative.Ref) (platform.MutateResult, error) {
	if f.RejectMutation != nil {
		if err := f.RejectMutation(adID, field, refs); err != nil {
			return platform.MutateResult{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ad, ok := f.adsByID[adID]
	if !ok {
		return platform.MutateResult{}, &platform.Error{Op: "mutate ad assets", Message: adID, Err: platform.ErrNotFound}
	}
	*ad = ad.WithRefs(field, refs)
	f.mutations[adID]++
	return platform.MutateResult{ResourceName: adID}, nil
}

func (f *FakePlatform) CampaignEnabled(ctx context.Context, campaignID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, ok := f.enabled[campaignID]
	if !ok {
		return false, &platform.Error{Op: "campaign status", Message: campaignID, Err: platform.ErrNotFound}
	}
	return enabled, nil
}

func (f *FakePlatform) LinkedAds(ctx context.Context, asset platform.LinkedAsset) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ads []string
	for id, ad := range f.adsByID {
		if creative.ContainsRef(ad.Refs(asset.Type), asset.Ref) {
			ads = append(ads, id)
		}
	}
	sort.Strings(ads)
	return ads, nil
}

func (f *FakePlatform) CreateAsset(ctx context.Context, t creative.AssetType, payload creative.Payload) (platform.CreateResult, error) {
	if f.CreateErr != nil {
		return platform.CreateResult{}, f.CreateErr
	}
	if err := payload.Validate(t); err != nil {
		return platform.CreateResult{}, &platform.Error{Op: "create asset", Message: err.Error(), Err: platform.ErrRejected}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return platform.CreateResult{ResourceName: fmt.Sprintf("customers/1234567890/assets/new-%d", f.created)}, nil
}
