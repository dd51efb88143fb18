package domain

// FolderContent - содержимое папки: сама папка (nil для корня) и её дочерние записи
type FolderContent struct {
	Folder *FileRecordView  `json:"folder"`
	Items  []FileRecordView `json:"items"`
}

// NewFolderContent собирает представления в порядке listChildren
func NewFolderContent(folder *FileRecord, children []FileRecord) *FolderContent {
	content := &FolderContent{Items: make([]FileRecordView, 0, len(children))}
	if folder != nil {
		view := folder.View()
		content.Folder = &view
	}
	for i := range children {
		content.Items = append(content.Items, children[i].View())
	}
	return content
}
