package auth

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Client 代表一个允许调用推荐 API 的客户端应用
type Client struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Token string `json:"-" yaml:"token"` // Token 用于鉴权，不序列化到 JSON
}

// Provider 定义客户端凭证查询的接口
type Provider interface {
	GetClient(clientID string) (*Client, error)
	GetClientByToken(token string) (*Client, error)
}

// StaticProvider 基于静态配置文件实现的客户端提供者
type StaticProvider struct {
	clients    map[string]*Client
	tokenIndex map[string]*Client
	mu         sync.RWMutex
}

type staticConfig struct {
	Clients []Client `yaml:"clients"`
}

// NewStaticProvider 从 clients.yaml 加载客户端凭证
func NewStaticProvider(configPath string) (*StaticProvider, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients config file: %w", err)
	}

	var config staticConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse clients config: %w", err)
	}

	clientMap := make(map[string]*Client)
	tokenIndex := make(map[string]*Client)

	for i := range config.Clients {
		c := &config.Clients[i]
		clientMap[c.ID] = c
		if c.Token != "" {
			tokenIndex[c.Token] = c
		}
	}

	return &StaticProvider{
		clients:    clientMap,
		tokenIndex: tokenIndex,
	}, nil
}

// GetClient 根据 ID 获取客户端信息
func (p *StaticProvider) GetClient(clientID string) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}
	return c, nil
}

// GetClientByToken 根据 Token 获取客户端信息
func (p *StaticProvider) GetClientByToken(token string) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.tokenIndex[token]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return c, nil
}
