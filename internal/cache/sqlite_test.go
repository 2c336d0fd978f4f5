package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/pkg/utils"
)

func newTestCache(t *testing.T) *SQLiteCache {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	cfg := &CacheConfig{
		Path:           filepath.Join(t.TempDir(), "offline.db"),
		MaxConnections: 4,
		MaxIdleTime:    time.Minute,
	}

	c := NewSQLiteCache(cfg)
	if err := c.Open(); err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Migrate(); err != nil {
		t.Fatalf("Failed to migrate cache: %v", err)
	}
	if err := c.Ping(); err != nil {
		t.Fatalf("Failed to ping cache: %v", err)
	}

	return c
}

func residentRecords(t *testing.T, ids ...string) []Record {
	t.Helper()

	residents := make([]*models.Resident, 0, len(ids))
	for _, id := range ids {
		residents = append(residents, &models.Resident{
			ID:           id,
			FirstName:    "Juan",
			LastName:     "Dela Cruz",
			Municipality: "San Isidro",
			Barangay:     "Poblacion",
		})
	}

	records, err := EncodeRecords(residents, func(r *models.Resident) string { return r.ID })
	if err != nil {
		t.Fatalf("Failed to encode records: %v", err)
	}
	return records
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	records := residentRecords(t, "r1", "r2", "r3")
	if err := c.PutCollection(ctx, CollectionResidents, records); err != nil {
		t.Fatalf("Failed to put collection: %v", err)
	}
	t.Logf("✓ Collection stored successfully")

	got, err := c.GetCollection(ctx, CollectionResidents)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}

	residents, err := DecodeRecords[*models.Resident](got)
	if err != nil {
		t.Fatalf("Failed to decode records: %v", err)
	}
	if residents[0].ID != "r1" || residents[0].Municipality != "San Isidro" {
		t.Errorf("Decoded resident does not match stored data: %+v", residents[0])
	}
	t.Logf("✓ Records survive the encode/store/decode round trip")

	count, err := c.CountCollection(ctx, CollectionResidents)
	if err != nil {
		t.Fatalf("Failed to count collection: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestSQLiteCacheReplaceNotMerge(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r1", "r2", "r3")); err != nil {
		t.Fatalf("Failed to put initial collection: %v", err)
	}

	// Second download of a different scope: old rows must vanish.
	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r9")); err != nil {
		t.Fatalf("Failed to replace collection: %v", err)
	}

	got, err := c.GetCollection(ctx, CollectionResidents)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 record after replace, got %d", len(got))
	}
	if got[0].ID != "r9" {
		t.Errorf("Expected only r9 to remain, got %s", got[0].ID)
	}
	t.Logf("✓ Replace does not merge with previous contents")
}

func TestSQLiteCacheReplaceWithEmpty(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r1")); err != nil {
		t.Fatalf("Failed to put collection: %v", err)
	}
	if err := c.PutCollection(ctx, CollectionResidents, nil); err != nil {
		t.Fatalf("Failed to replace with empty set: %v", err)
	}

	count, err := c.CountCollection(ctx, CollectionResidents)
	if err != nil {
		t.Fatalf("Failed to count collection: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty collection, got %d records", count)
	}
}

func TestSQLiteCacheCollectionsAreIndependent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r1", "r2")); err != nil {
		t.Fatalf("Failed to put residents: %v", err)
	}

	centers := []*models.EvacCenter{{ID: "c1", Name: "Poblacion Gym", Capacity: 100}}
	centerRecords, err := EncodeRecords(centers, func(c *models.EvacCenter) string { return c.ID })
	if err != nil {
		t.Fatalf("Failed to encode centers: %v", err)
	}
	if err := c.PutCollection(ctx, CollectionEvacCenters, centerRecords); err != nil {
		t.Fatalf("Failed to put centers: %v", err)
	}

	// Replacing residents must not touch centers.
	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r5")); err != nil {
		t.Fatalf("Failed to replace residents: %v", err)
	}

	count, err := c.CountCollection(ctx, CollectionEvacCenters)
	if err != nil {
		t.Fatalf("Failed to count centers: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected centers untouched, got %d records", count)
	}
}

func TestSQLiteCacheMetadata(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, found, err := c.GetMetadata(ctx, models.MetaKeyOfflineScope)
	if err != nil {
		t.Fatalf("Failed to get missing metadata: %v", err)
	}
	if found {
		t.Fatal("Expected no metadata before first set")
	}

	scope := models.OfflineScope{Municipality: "San Isidro", DownloadedAt: time.Now().UTC()}
	raw, err := EncodeMetadata(scope)
	if err != nil {
		t.Fatalf("Failed to encode metadata: %v", err)
	}
	if err := c.SetMetadata(ctx, models.MetaKeyOfflineScope, raw); err != nil {
		t.Fatalf("Failed to set metadata: %v", err)
	}

	raw, found, err = c.GetMetadata(ctx, models.MetaKeyOfflineScope)
	if err != nil {
		t.Fatalf("Failed to get metadata: %v", err)
	}
	if !found {
		t.Fatal("Expected metadata to be found")
	}

	var got models.OfflineScope
	if err := DecodeMetadata(raw, &got); err != nil {
		t.Fatalf("Failed to decode metadata: %v", err)
	}
	if got.Municipality != "San Isidro" {
		t.Errorf("Expected municipality San Isidro, got %s", got.Municipality)
	}
	t.Logf("✓ Offline scope metadata round trip successful")

	// Overwrite replaces the previous value.
	scope.Municipality = "Santa Rosa"
	raw, _ = EncodeMetadata(scope)
	if err := c.SetMetadata(ctx, models.MetaKeyOfflineScope, raw); err != nil {
		t.Fatalf("Failed to overwrite metadata: %v", err)
	}

	raw, _, _ = c.GetMetadata(ctx, models.MetaKeyOfflineScope)
	if err := DecodeMetadata(raw, &got); err != nil {
		t.Fatalf("Failed to decode overwritten metadata: %v", err)
	}
	if got.Municipality != "Santa Rosa" {
		t.Errorf("Expected overwritten municipality Santa Rosa, got %s", got.Municipality)
	}
}

func TestSQLiteCacheClearAll(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.PutCollection(ctx, CollectionResidents, residentRecords(t, "r1")); err != nil {
		t.Fatalf("Failed to put collection: %v", err)
	}

	scope, _ := EncodeMetadata(models.OfflineScope{Municipality: "San Isidro"})
	if err := c.SetMetadata(ctx, models.MetaKeyOfflineScope, scope); err != nil {
		t.Fatalf("Failed to set metadata: %v", err)
	}

	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("Failed to clear cache: %v", err)
	}

	count, err := c.CountCollection(ctx, CollectionResidents)
	if err != nil {
		t.Fatalf("Failed to count after clear: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty collection after clear, got %d", count)
	}

	_, found, err := c.GetMetadata(ctx, models.MetaKeyOfflineScope)
	if err != nil {
		t.Fatalf("Failed to get metadata after clear: %v", err)
	}
	if found {
		t.Error("Expected metadata removed by clear")
	}
	t.Logf("✓ Clear wipes collections and metadata together")
}

func TestSQLiteCacheHealth(t *testing.T) {
	c := newTestCache(t)

	health := c.GetHealth()
	if !health.Healthy {
		t.Errorf("Expected healthy cache, got %+v", health)
	}

	closed := NewSQLiteCache(&CacheConfig{Path: filepath.Join(t.TempDir(), "never-opened.db")})
	health = closed.GetHealth()
	if health.Healthy {
		t.Error("Expected unopened cache to report unhealthy")
	}
}

func TestSQLiteCacheErrorsCarryStorageCode(t *testing.T) {
	closed := NewSQLiteCache(&CacheConfig{Path: filepath.Join(t.TempDir(), "never-opened.db")})

	_, err := closed.GetCollection(context.Background(), CollectionResidents)
	if err == nil {
		t.Fatal("Expected error from unopened cache")
	}
	if !utils.HasCode(err, utils.ErrCodeStorageUnavailable) {
		t.Errorf("Expected STORAGE_UNAVAILABLE, got %v", err)
	}
}
