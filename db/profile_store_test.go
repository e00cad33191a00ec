package db

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"teachprep-server-go/logger"
	"teachprep-server-go/models"
)

func testStore(t *testing.T) *ProfileStore {
	t.Helper()
	return NewProfileStore(filepath.Join(t.TempDir(), "profiles", "class_profiles.json"), logger.NewNop())
}

func TestProfileStoreMissingFileIsEmpty(t *testing.T) {
	store := testStore(t)
	profiles, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected empty store, got %v", profiles)
	}
}

func TestProfileStoreUpdateGet(t *testing.T) {
	store := testStore(t)
	profile := models.ClassProfile{
		GradesQuery:       "3",
		TrainedWeaknesses: "耐力、力量",
		Description:       "三年级2班体质监测核心薄弱维度：耐力、力量",
	}
	if err := store.Update("三年级2班", profile); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, found, err := store.Get("三年级2班")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, profile) {
		t.Fatalf("Get = %+v, want %+v", got, profile)
	}

	if _, found, _ := store.Get("不存在的班级"); found {
		t.Fatal("expected miss for unknown class")
	}
}

func TestProfileStoreDelete(t *testing.T) {
	store := testStore(t)
	if err := store.Update("五年级1班", models.ClassProfile{GradesQuery: "5"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	deleted, err := store.Delete("五年级1班")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = store.Delete("五年级1班")
	if err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if deleted {
		t.Fatal("expected deleted=false for absent class")
	}
}

func TestProfileStoreClassNamesLongestFirst(t *testing.T) {
	store := testStore(t)
	for _, name := range []string{"2班", "三年级2班", "三年级12班"} {
		if err := store.Update(name, models.ClassProfile{}); err != nil {
			t.Fatalf("Update(%s): %v", name, err)
		}
	}
	names, err := store.ClassNames()
	if err != nil {
		t.Fatalf("ClassNames: %v", err)
	}
	want := []string{"三年级12班", "三年级2班", "2班"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("ClassNames = %v, want %v", names, want)
	}
}

func TestProfileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "class_profiles.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewProfileStore(path, logger.NewNop())
	profiles, err := store.All()
	if err != nil {
		t.Fatalf("All on corrupt file: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected empty map, got %v", profiles)
	}
}
