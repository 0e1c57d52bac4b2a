package mongoutil

import (
	"context"
	"time"

	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config mongo 连接配置；Uri 与 Address 二选一，Uri 优先
type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

type Client struct {
	db *mongo.Database
}

func (c *Client) GetDB() *mongo.Database {
	return c.db
}

// NewMongoDB 建连并 ping 通过才返回；可重试错误按 MaxRetry 重试
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts, err := config.clientOptions()
	if err != nil {
		return nil, err
	}

	var cli *mongo.Client
	for i := 0; ; i++ {
		cli, err = connectMongo(ctx, opts)
		if err == nil {
			break
		}
		if i+1 >= config.MaxRetry || !shouldRetry(ctx, err) {
			return nil, errs.WrapMsg(err, "connect mongo", "uri", config.Uri)
		}
		time.Sleep(500 * time.Millisecond)
	}
	return &Client{db: cli.Database(config.Database)}, nil
}

func (c *Config) clientOptions() (*options.ClientOptions, error) {
	var opts *options.ClientOptions
	switch {
	case c.Uri != "":
		// 完整 URI 可带 ?authSource=admin&replicaSet=rs0 之类参数
		opts = options.Client().ApplyURI(c.Uri)
	case len(c.Address) > 0:
		opts = options.Client().SetHosts(c.Address)
	default:
		return nil, errs.New("mongo uri or address is required")
	}
	opts.SetMaxPoolSize(uint64(c.MaxPoolSize))

	// 显式给了用户名密码则覆盖 URI 里的认证
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthSource,
		})
	}
	return opts, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return cli, nil
}
