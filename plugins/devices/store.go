/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package devices

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	libval "github.com/go-playground/validator/v10"
	gormdb "gorm.io/gorm"

	libgorm "github.com/nabbar/golib/database/gorm"
)

var validate = libval.New()

// Store is the gorm-backed persistence layer for the device inventory.
type Store struct {
	db libgorm.Database
}

// NewStore opens (creating if needed) a sqlite-backed Store at path and
// migrates the Device schema.
func NewStore(path string) (*Store, error) {
	db, err := libgorm.New(&libgorm.Config{
		Driver: libgorm.DriverSQLite,
		Name:   "devices",
		DSN:    path,
	})
	if err != nil {
		return nil, ErrorStorage.Error(err)
	}

	if err := db.GetDB().AutoMigrate(&Device{}); err != nil {
		return nil, ErrorStorage.Error(err)
	}

	return &Store{db: db}, nil
}

// HealthCheck delegates to the underlying database connection probe, so the
// status plugin can fold this store into its own readiness report.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *Store) List() ([]Device, error) {
	var out []Device
	if err := s.db.GetDB().Order("id").Find(&out).Error; err != nil {
		return nil, ErrorStorage.Error(err)
	}
	return out, nil
}

func (s *Store) Get(id string) (*Device, error) {
	var d Device
	err := s.db.GetDB().First(&d, "id = ?", id).Error
	if errors.Is(err, gormdb.ErrRecordNotFound) {
		return nil, ErrorNotFound.Error()
	} else if err != nil {
		return nil, ErrorStorage.Error(err)
	}
	return &d, nil
}

func (s *Store) Create(d *Device) error {
	if err := validate.Struct(d); err != nil {
		return ErrorValidation.Error(err)
	}

	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt

	if err := s.db.GetDB().Create(d).Error; err != nil {
		return ErrorStorage.Error(err)
	}
	return nil
}

func (s *Store) Update(id string, d *Device) error {
	d.ID = id
	if err := validate.Struct(d); err != nil {
		return ErrorValidation.Error(err)
	}

	if _, err := s.Get(id); err != nil {
		return err
	}

	d.UpdatedAt = time.Now()

	if err := s.db.GetDB().Model(&Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":       d.Name,
		"address":    d.Address,
		"tags":       d.Tags,
		"updated_at": d.UpdatedAt,
	}).Error; err != nil {
		return ErrorStorage.Error(err)
	}

	return nil
}

func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	if err := s.db.GetDB().Delete(&Device{}, "id = ?", id).Error; err != nil {
		return ErrorStorage.Error(err)
	}

	return nil
}

// decodeBody unmarshals a Device payload from raw JSON body bytes.
func decodeBody(body []byte, d *Device) error {
	if len(body) == 0 {
		return ErrorValidation.Error()
	}
	if err := json.Unmarshal(body, d); err != nil {
		return ErrorValidation.Error(err)
	}
	return nil
}
