package exchange

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/security"
	stderrors "errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultSimulatedCash = 100_000_000

func errNoBroker(accountID string) error {
	return errors.NotFound("no broker bound to account %s", accountID)
}

// LiveFactory 根据账户凭证创建真实券商客户端
type LiveFactory func(acc *entity.Account) (Broker, error)

// AccountProvider 按账户配置解析券商子账户，结果缓存
type AccountProvider struct {
	accounts dao.AccountDAO
	cfg      conf.Config
	live     LiveFactory
	rdb      *redis.Client
	sealer   *security.Sealer

	mu      sync.Mutex
	brokers map[string]Broker
	sims    map[string]*SimulatedBroker
}

func NewAccountProvider(accounts dao.AccountDAO, cfg conf.Config, live LiveFactory, rdb *redis.Client) *AccountProvider {
	return &AccountProvider{
		accounts: accounts,
		cfg:      cfg,
		live:     live,
		rdb:      rdb,
		brokers:  make(map[string]Broker),
		sims:     make(map[string]*SimulatedBroker),
	}
}

// WithSealer 落库的凭证是加密的，创建客户端前先解密
func (p *AccountProvider) WithSealer(s *security.Sealer) *AccountProvider {
	p.sealer = s
	return p
}

func (p *AccountProvider) Broker(ctx context.Context, accountID string) (Broker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.brokers[accountID]; ok {
		return b, nil
	}

	acc, err := p.accounts.FindByID(ctx, accountID)
	if stderrors.Is(err, dao.ErrNotFound) && p.cfg.Simulated {
		// 模拟盘自动开户
		acc = &entity.Account{ID: accountID, Simulated: true, InitialCash: defaultSimulatedCash, Active: true}
		err = nil
	}
	if stderrors.Is(err, dao.ErrNotFound) {
		return nil, errNoBroker(accountID)
	}
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, errors.Config("account %s is not active", accountID)
	}

	var inner Broker
	if acc.Simulated || p.cfg.Simulated {
		cash := acc.InitialCash
		if cash <= 0 {
			cash = defaultSimulatedCash
		}
		sim := NewSimulatedBroker(cash)
		p.sims[accountID] = sim
		inner = sim
	} else {
		if acc.AppKey == "" || acc.AppSecret == "" || acc.BrokerAccountNo == "" {
			return nil, errors.Config("account %s has no broker credentials", accountID)
		}
		if p.live == nil {
			return nil, errors.Config("live broker client is not configured")
		}
		creds, err := p.credentials(acc)
		if err != nil {
			return nil, err
		}
		if inner, err = p.live(creds); err != nil {
			return nil, errors.Wrap(err, ecode.ConfigErr, "create broker client")
		}
	}

	var b Broker = NewGuardedBroker(inner, p.cfg.Broker)
	if p.rdb != nil {
		b = NewCachedBroker(b, p.rdb)
	}
	p.brokers[accountID] = b
	logger.Infof("[Broker] account %s bound (simulated=%v)", accountID, acc.Simulated || p.cfg.Simulated)
	return b, nil
}

// credentials 返回凭证已解密的账户副本
func (p *AccountProvider) credentials(acc *entity.Account) (*entity.Account, error) {
	out := *acc
	if p.sealer == nil {
		if security.IsSealed(acc.AppSecret) {
			return nil, errors.Config("account %s credentials are sealed but no secret key is configured", acc.ID)
		}
		return &out, nil
	}
	secret, err := p.sealer.Open(acc.AppSecret)
	if err != nil {
		return nil, errors.Wrap(err, ecode.ConfigErr, "open broker credentials")
	}
	out.AppSecret = secret
	return &out, nil
}

// Simulated 模拟盘账户对应的模拟券商，用于注入行情
func (p *AccountProvider) Simulated(accountID string) (*SimulatedBroker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sim, ok := p.sims[accountID]
	return sim, ok
}

// EachSimulated 遍历所有模拟券商
func (p *AccountProvider) EachSimulated(fn func(accountID string, sim *SimulatedBroker)) {
	p.mu.Lock()
	sims := make(map[string]*SimulatedBroker, len(p.sims))
	for k, v := range p.sims {
		sims[k] = v
	}
	p.mu.Unlock()
	for k, v := range sims {
		fn(k, v)
	}
}
