package repository

import (
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

func seedTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

// Seed はデモ用のプロジェクト3件とドキュメント4件を投入する。
// 既存のデータは保持し、同じIDのレコードは上書きする。
func (s *MemoryStore) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects := []model.Project{
		{
			ID:          "1",
			Name:        "Квартира на Арбате",
			ClientName:  "Иван Иванович Петров",
			ClientPhone: "+7 (999) 123-45-67",
			ClientEmail: "ivan.petrov@example.com",
			Description: "Дизайн 3-комнатной квартиры в центре Москвы",
			CreatedAt:   seedTime("2024-01-15T10:00:00Z"),
		},
		{
			ID:          "2",
			Name:        "Офис IT-компании",
			ClientName:  "Анна Сергеевна Кузнецова",
			ClientPhone: "+7 (999) 987-65-43",
			ClientEmail: "anna.kuznetsova@techcompany.com",
			Description: "Современный офис для стартапа в сфере IT",
			CreatedAt:   seedTime("2024-01-10T14:30:00Z"),
		},
		{
			ID:          "3",
			Name:        "Загородный дом",
			ClientName:  "Михаил Александрович Волков",
			ClientPhone: "+7 (999) 555-12-34",
			ClientEmail: "mikhail.volkov@email.ru",
			Description: "Интерьер загородного дома в классическом стиле",
			CreatedAt:   seedTime("2024-01-08T09:15:00Z"),
		},
	}
	for i := range projects {
		p := projects[i]
		p.UpdatedAt = p.CreatedAt
		s.projects[p.ID] = &p
	}

	documents := []model.Document{
		{ID: "doc-1", ProjectID: "1", Name: "Договор на дизайн-проект №ДП-001", Type: model.DocumentTypeContract,
			Status: model.DocumentStatusDraft, CreatedAt: seedTime("2024-01-15T10:30:00Z")},
		{ID: "doc-2", ProjectID: "1", Name: "Техническое задание", Type: model.DocumentTypeAttachment,
			Status: model.DocumentStatusDraft, CreatedAt: seedTime("2024-01-15T11:00:00Z")},
		{ID: "doc-3", ProjectID: "2", Name: "Договор на дизайн офиса №ДП-002", Type: model.DocumentTypeContract,
			Status: model.DocumentStatusPendingSignature, CreatedAt: seedTime("2024-01-10T15:00:00Z")},
		{ID: "doc-4", ProjectID: "3", Name: "Договор на дизайн дома №ДП-003", Type: model.DocumentTypeContract,
			Status: model.DocumentStatusSigned, CreatedAt: seedTime("2024-01-08T10:00:00Z")},
	}
	for i := range documents {
		d := documents[i]
		d.UpdatedAt = d.CreatedAt
		if d.Status == model.DocumentStatusSigned {
			signedAt := d.UpdatedAt
			d.SignedAt = &signedAt
		}
		s.documents[d.ID] = &d
	}
}
