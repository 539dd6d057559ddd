package versions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruledit/internal/clock"
	"grimm.is/ruledit/internal/ruleset"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	sqlite, err := OpenSQLite(":memory:", clk)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(clk),
	}
}

func TestStore_VersionsAreMonotonicPerDevice(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var got []int
			for _, dev := range []string{"edge-1", "edge-2", "edge-1", "edge-1", "edge-2"} {
				rec := &Record{DeviceName: dev, ConfigType: "iptables", ConfigData: "iptables -F\n\n"}
				require.NoError(t, s.Save(ctx, rec))
				assert.NotZero(t, rec.ID)
				got = append(got, rec.Version)
			}
			assert.Equal(t, []int{1, 1, 2, 3, 2}, got)
		})
	}
}

func TestStore_ListNewestFirstWithoutData(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, desc := range []string{"first", "second", "third"} {
				require.NoError(t, s.Save(ctx, &Record{DeviceName: "fw", ConfigType: "iptables", ConfigData: desc, Description: desc}))
			}
			require.NoError(t, s.Save(ctx, &Record{DeviceName: "other", ConfigType: "ebtables", ConfigData: "x"}))

			list, err := s.List(ctx, "fw")
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "third", list[0].Description)
			assert.Equal(t, 3, list[0].Version)
			assert.Equal(t, "first", list[2].Description)
			for _, rec := range list {
				assert.Empty(t, rec.ConfigData)
			}

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 4)

			none, err := s.List(ctx, "missing")
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)
		})
	}
}

func TestStore_GetAndDevices(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &Record{DeviceName: "b", ConfigType: "ip6tables", ConfigData: "ip6tables -F\n\n", Description: "init"}
			require.NoError(t, s.Save(ctx, rec))
			require.NoError(t, s.Save(ctx, &Record{DeviceName: "a", ConfigType: "iptables", ConfigData: "x"}))

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ConfigData, got.ConfigData)
			assert.Equal(t, "init", got.Description)
			assert.Equal(t, "ip6tables", got.ConfigType)
			assert.True(t, got.CreatedAt.Equal(rec.CreatedAt), "created_at %v != %v", got.CreatedAt, rec.CreatedAt)

			_, err = s.Get(ctx, 999)
			assert.True(t, errors.Is(err, ErrNotFound))

			devices, err := s.Devices(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, devices)
		})
	}
}

func TestStore_RejectsIncompleteRecords(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Error(t, s.Save(ctx, &Record{ConfigType: "iptables"}))
			assert.Error(t, s.Save(ctx, &Record{DeviceName: "x"}))
			assert.Error(t, s.Save(ctx, nil))
		})
	}
}

func TestOpenSQLite_File(t *testing.T) {
	path := t.TempDir() + "/nested/versions.db"
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), &Record{DeviceName: "d", ConfigType: "iptables", ConfigData: "x"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, nil)
	require.NoError(t, err)
	defer s.Close()
	rec := &Record{DeviceName: "d", ConfigType: "iptables", ConfigData: "y"}
	require.NoError(t, s.Save(context.Background(), rec))
	assert.Equal(t, 2, rec.Version, "versions continue after reopening")
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	v1 := &Record{DeviceName: "d", ConfigType: "iptables", ConfigData: "A\nB\nC"}
	v2 := &Record{DeviceName: "d", ConfigType: "iptables", ConfigData: "A\nC\nD"}
	require.NoError(t, s.Save(ctx, v1))
	require.NoError(t, s.Save(ctx, v2))

	cmp, err := Compare(ctx, s, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "-B", "C", "+D"}, cmp.Marked())
	assert.Equal(t, 1, cmp.Added)
	assert.Equal(t, 1, cmp.Removed)

	_, err = Compare(ctx, s, v1.ID, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRoundTrip(t *testing.T) {
	rs := ruleset.Parse("iptables -P INPUT DROP\niptables -A INPUT -p tcp --dport 22 -j ACCEPT\n", ruleset.IPTables)
	rs.DeviceName = "edge-1"

	rec := FromRuleSet(rs, "baseline")
	assert.Equal(t, "iptables", rec.ConfigType)
	assert.Equal(t, "edge-1", rec.DeviceName)

	back, err := Load(rec)
	require.NoError(t, err)
	assert.Equal(t, "edge-1", back.DeviceName)
	assert.Equal(t, rs.Render(), back.Render())

	_, err = Load(&Record{ConfigType: "pf"})
	assert.ErrorIs(t, err, ruleset.ErrUnknownFirewallType)
}
