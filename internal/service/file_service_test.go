package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

func TestFileService_CreateFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs, err := env.service.CreateFolder(ctx, testUser, "  Docs ", nil)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if docs.Name != "Docs" || docs.Path != "/Docs" {
		t.Errorf("неверная папка: %+v", docs)
	}

	if _, err := env.service.CreateFolder(ctx, testUser, "Docs", nil); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
	if _, err := env.service.CreateFolder(ctx, testUser, "a/b", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ожидалась ErrValidation для имени с разделителем, получено %v", err)
	}

	sub, err := env.service.CreateFolder(ctx, testUser, "Sub", &docs.ID)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if sub.Path != "/Docs/Sub" {
		t.Errorf("путь = %q", sub.Path)
	}
}

func TestFileService_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	f, err := env.service.CreateFolder(ctx, testUser, "F", nil)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	result, err := env.ingestor.Ingest(ctx, testUser, []UploadFile{uploadFile("x.txt", "x")}, UploadOptions{TargetFolderID: &f.ID})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	blob := *result.Results[0].Record.Filename

	content, err := env.service.List(ctx, testUser, &f.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if content.Folder == nil || content.Folder.ID != f.ID || len(content.Items) != 1 {
		t.Fatalf("неверное содержимое папки: %+v", content)
	}
	if content.Items[0].Category != domain.CategoryText {
		t.Errorf("категория = %q", content.Items[0].Category)
	}

	count, err := env.service.Delete(ctx, testUser, []string{f.ID})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if count != 2 {
		t.Errorf("удалено %d, ожидалось 2", count)
	}

	root, err := env.service.List(ctx, testUser, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if root.Folder != nil || len(root.Items) != 0 {
		t.Errorf("корень должен быть пуст: %+v", root)
	}

	// Мягкое удаление не трогает блобы
	exists, err := env.blobs.Exists(ctx, blob)
	if err != nil || !exists {
		t.Errorf("блоб должен остаться после мягкого удаления: %v, %v", exists, err)
	}

	if _, err := env.service.Delete(ctx, testUser, []string{f.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := env.service.Delete(ctx, testUser, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestFileService_RenameAndTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.ingestor.Ingest(ctx, testUser, []UploadFile{uploadFile("draft.txt", "text")},
		UploadOptions{Tags: []string{"work"}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	rec := result.Results[0].Record

	renamed, err := env.service.Rename(ctx, testUser, rec.ID, "final.txt", nil)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "final.txt" || len(renamed.Tags) != 1 {
		t.Errorf("неверная запись после переименования: %+v", renamed)
	}

	// Переименование не трогает блоб, содержимое доступно
	_, rc, err := env.service.OpenContent(ctx, testUser, rec.ID)
	if err != nil {
		t.Fatalf("OpenContent: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "text" {
		t.Errorf("содержимое = %q", data)
	}

	tagged, err := env.service.UpdateTags(ctx, testUser, rec.ID, []string{"a", "b", "a"})
	if err != nil {
		t.Fatalf("UpdateTags: %v", err)
	}
	if tagged.Name != "final.txt" || len(tagged.Tags) != 2 {
		t.Errorf("неверные теги: %+v", tagged)
	}

	if _, err := env.service.Rename(ctx, testUser, rec.ID, "..", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestFileService_Move(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _ := env.service.CreateFolder(ctx, testUser, "A", nil)
	b, _ := env.service.CreateFolder(ctx, testUser, "B", &a.ID)

	if _, err := env.service.Move(ctx, testUser, []string{a.ID}, &b.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
	if _, err := env.service.Move(ctx, testUser, nil, &b.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}

	moved, err := env.service.Move(ctx, testUser, []string{b.ID}, nil)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved[0].ParentID != nil {
		t.Errorf("B должна оказаться в корне")
	}
}

func TestFileService_SearchByCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	files := []UploadFile{
		uploadFile("holiday.png", "png"),
		uploadFile("holiday.txt", "txt"),
		uploadFile("budget.xlsx", "xlsx"),
	}
	if _, err := env.ingestor.Ingest(ctx, testUser, files, UploadOptions{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := env.service.CreateFolder(ctx, testUser, "holiday", nil); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	found, err := env.service.Search(ctx, testUser, SearchQuery{
		SearchParams: repository.SearchParams{Query: "holiday"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 3 {
		t.Errorf("ожидалось 3 совпадения, получено %d", len(found))
	}

	found, err = env.service.Search(ctx, testUser, SearchQuery{
		SearchParams: repository.SearchParams{Query: "holiday"},
		Category:     domain.CategoryImage,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Name != "holiday.png" {
		t.Errorf("фильтр по категории: %+v", found)
	}
}

func TestFileService_OpenContentErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	folder, _ := env.service.CreateFolder(ctx, testUser, "F", nil)
	if _, _, err := env.service.OpenContent(ctx, testUser, folder.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("папка: ожидалась ErrValidation, получено %v", err)
	}

	result, err := env.ingestor.Ingest(ctx, testUser, []UploadFile{uploadFile("gone.txt", "x")}, UploadOptions{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	rec := result.Results[0].Record
	if err := env.blobs.Delete(ctx, *rec.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := env.service.OpenContent(ctx, testUser, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("отсутствующий блоб: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestFavoriteAndTrashServices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	favorites := NewFavoriteService(repository.NewFavoriteRepository(env.db), env.files)
	trash := NewTrashService(repository.NewTrashRepository(env.db), env.logger)

	result, err := env.ingestor.Ingest(ctx, testUser, []UploadFile{uploadFile("fav.txt", "x")}, UploadOptions{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	rec := result.Results[0].Record

	if err := favorites.Add(ctx, testUser, rec.ID); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := favorites.Add(ctx, testUser, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	if _, err := env.service.Delete(ctx, testUser, []string{rec.ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	list, err := favorites.List(ctx, testUser)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("удалённый файл не должен показываться в избранном: %v", list)
	}

	items, err := trash.GetTrashItems(ctx, testUser)
	if err != nil {
		t.Fatalf("GetTrashItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != rec.ID {
		t.Fatalf("в корзине ожидался fav.txt, получено %+v", items)
	}

	if _, err := trash.RestoreFromTrash(ctx, rec.ID, testUser); err != nil {
		t.Fatalf("RestoreFromTrash: %v", err)
	}

	list, err = favorites.List(ctx, testUser)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("после восстановления файл снова в избранном, получено %d", len(list))
	}
}
