package store

import (
	"context"
	"errors"

	"facegate/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	DB *gorm.DB
}

func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Site{}, &models.Device{}, &models.Person{}); err != nil {
		return nil, err
	}

	return &Store{DB: db}, nil
}

func (s *Store) CreateSite(ctx context.Context, site *models.Site) error {
	return s.DB.WithContext(ctx).Create(site).Error
}

func (s *Store) SiteByID(ctx context.Context, id uint) (*models.Site, error) {
	var site models.Site
	if err := s.DB.WithContext(ctx).First(&site, id).Error; err != nil {
		return nil, wrap(err)
	}
	return &site, nil
}

func (s *Store) SiteByName(ctx context.Context, name string) (*models.Site, error) {
	var site models.Site
	if err := s.DB.WithContext(ctx).Where("name = ?", name).First(&site).Error; err != nil {
		return nil, wrap(err)
	}
	return &site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]models.Site, error) {
	var sites []models.Site
	if err := s.DB.WithContext(ctx).Order("id asc").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (s *Store) CreateDevice(ctx context.Context, dev *models.Device) error {
	return s.DB.WithContext(ctx).Create(dev).Error
}

func (s *Store) DeviceByAddress(ctx context.Context, addr string) (*models.Device, error) {
	var dev models.Device
	if err := s.DB.WithContext(ctx).Where("ip_address = ?", addr).First(&dev).Error; err != nil {
		return nil, wrap(err)
	}
	return &dev, nil
}

func (s *Store) DevicesBySite(ctx context.Context, siteID uint) ([]models.Device, error) {
	var devs []models.Device
	if err := s.DB.WithContext(ctx).Where("site_id = ?", siteID).Order("id asc").Find(&devs).Error; err != nil {
		return nil, err
	}
	return devs, nil
}

func (s *Store) CreatePerson(ctx context.Context, p *models.Person) error {
	return s.DB.WithContext(ctx).Create(p).Error
}

func (s *Store) PersonByAccountID(ctx context.Context, accountID string) (*models.Person, error) {
	var p models.Person
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&p).Error; err != nil {
		return nil, wrap(err)
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context) ([]models.Person, error) {
	var people []models.Person
	if err := s.DB.WithContext(ctx).Order("id asc").Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}

func (s *Store) UpdatePerson(ctx context.Context, p *models.Person) error {
	return s.DB.WithContext(ctx).Save(p).Error
}

// SavePersons applies a reconciliation pass in one transaction: new people are
// inserted, changed ones updated. Either everything commits or nothing does.
func (s *Store) SavePersons(ctx context.Context, created, updated []*models.Person) error {
	if len(created) == 0 && len(updated) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range created {
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		for _, p := range updated {
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Counts returns site, device and person totals for the overview endpoint.
func (s *Store) Counts(ctx context.Context) (sites, devices, persons int64, err error) {
	db := s.DB.WithContext(ctx)
	if err = db.Model(&models.Site{}).Count(&sites).Error; err != nil {
		return
	}
	if err = db.Model(&models.Device{}).Count(&devices).Error; err != nil {
		return
	}
	err = db.Model(&models.Person{}).Count(&persons).Error
	return
}

func wrap(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
