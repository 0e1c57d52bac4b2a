package mongoutil

import (
	"context"
	"fmt"
	"strings"

	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
)

// ValidateAndSetDefaults 校验必填项并补默认值；没给 Uri 时由 Address 拼出来
func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.New("either Uri or Address must be provided")
	}
	if c.Database == "" {
		return errs.New("database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		if c.AuthSource == "" {
			c.AuthSource = "admin"
		}
		cred := ""
		if c.Username != "" && c.Password != "" {
			cred = fmt.Sprintf("%s:%s@", c.Username, c.Password)
		}
		c.Uri = fmt.Sprintf("mongodb://%s%s/%s?authSource=%s&maxPoolSize=%d",
			cred, strings.Join(c.Address, ","), c.Database, c.AuthSource, c.MaxPoolSize)
	}
	return nil
}

// shouldRetry 认证失败（13/18）不重试，其余网络类错误重试
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cmdErr, ok := err.(mongo.CommandError); ok {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}

// IsDup 唯一索引冲突（E11000）
func IsDup(err error) bool {
	return err != nil && mongo.IsDuplicateKeyError(err)
}
