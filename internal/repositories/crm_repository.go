package repositories

import (
	"fmt"

	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/models/chat"

	"gorm.io/gorm"
)

// CRMRepository resolves conversation subjects against the CRM tables. The
// chat core only needs existence checks and display names; subject CRUD
// belongs to the surrounding CRM.
type CRMRepository interface {
	SubjectExists(db *gorm.DB, subject chat.SubjectRef) (bool, error)
	SubjectName(db *gorm.DB, subject chat.SubjectRef) (string, error)
}

type CRMRepositoryImpl struct{}

func NewCRMRepository() CRMRepository {
	return &CRMRepositoryImpl{}
}

func (r *CRMRepositoryImpl) SubjectExists(db *gorm.DB, subject chat.SubjectRef) (bool, error) {
	var count int64
	var err error

	switch subject.Type {
	case chat.SubjectClient:
		err = db.Model(&models.Client{}).Where("id = ?", subject.ID).Count(&count).Error
	case chat.SubjectLead:
		err = db.Model(&models.Lead{}).Where("id = ?", subject.ID).Count(&count).Error
	case chat.SubjectGuestSession:
		err = db.Model(&models.GuestSession{}).Where("id = ?", subject.ID).Count(&count).Error
	case chat.SubjectNone:
		return true, nil
	default:
		return false, fmt.Errorf("unknown subject type: %s", subject.Type)
	}

	return count > 0, err
}

func (r *CRMRepositoryImpl) SubjectName(db *gorm.DB, subject chat.SubjectRef) (string, error) {
	switch subject.Type {
	case chat.SubjectClient:
		var client models.Client
		if err := db.First(&client, "id = ?", subject.ID).Error; err != nil {
			return "", err
		}
		return client.Name, nil
	case chat.SubjectLead:
		var lead models.Lead
		if err := db.First(&lead, "id = ?", subject.ID).Error; err != nil {
			return "", err
		}
		return lead.Name, nil
	case chat.SubjectGuestSession:
		var session models.GuestSession
		if err := db.First(&session, "id = ?", subject.ID).Error; err != nil {
			return "", err
		}
		return "Guest " + session.VisitorKey, nil
	default:
		return "", nil
	}
}
