package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"multitrader/internal/config"
)

const (
	saltLength   = 16
	masterLength = 32
	fileMode     = 0o600
	dirMode      = 0o700
)

var (
	// ErrPasswordRequired 表示调用方未提供口令。
	ErrPasswordRequired = errors.New("vault: password required")
	// ErrInvalidPassword 表示口令错误或密文被篡改。
	ErrInvalidPassword = errors.New("vault: invalid password")
	// ErrCorruptVault 表示保险库文件缺失或损坏,无法区分为首次运行。
	ErrCorruptVault = errors.New("vault: vault corrupted")
	// ErrLocked 表示尚未完成解锁。
	ErrLocked = errors.New("vault: vault locked")
)

// Store 管理磁盘上的加密保险库:盐、包裹后的主密钥与账户密文。
// 主密钥只在内存中以明文存在,口令轮换仅重新包裹主密钥,账户密文不动。
type Store struct {
	saltPath     string
	keyPath      string
	accountsPath string
	iterations   int
	logger       *zap.Logger

	master []byte
}

// Open 构造保险库实例,不做任何磁盘读取。
func Open(cfg config.VaultConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	iterations := cfg.Iterations
	if iterations < minIterations {
		iterations = minIterations
	}
	return &Store{
		saltPath:     filepath.Join(cfg.Dir, cfg.SaltFile),
		keyPath:      filepath.Join(cfg.Dir, cfg.KeyFile),
		accountsPath: filepath.Join(cfg.Dir, cfg.AccountsFile),
		iterations:   iterations,
		logger:       logger,
	}
}

// Unlock 用口令解锁保险库。主密钥文件存在时尝试解包,任何失败都视为口令错误;
// 不存在时走首次初始化路径,生成并包裹新的主密钥。
func (s *Store) Unlock(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	if err := os.MkdirAll(filepath.Dir(s.saltPath), dirMode); err != nil {
		return fmt.Errorf("vault: 创建保险库目录失败: %w", err)
	}

	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return err
	}

	derived := deriveKey(password, salt, s.iterations)

	wrapped, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil:
		master, openErr := aeadOpen(derived, wrapped)
		if openErr != nil {
			return fmt.Errorf("%w: 主密钥解包失败", ErrInvalidPassword)
		}
		if len(master) != masterLength {
			return fmt.Errorf("%w: 主密钥长度异常", ErrCorruptVault)
		}
		s.master = master
		return nil
	case os.IsNotExist(err):
		// 首次运行:生成主密钥并用口令派生密钥包裹后落盘。
		master := make([]byte, masterLength)
		if _, err := rand.Read(master); err != nil {
			return fmt.Errorf("vault: 生成主密钥失败: %w", err)
		}
		wrapped, sealErr := aeadSeal(derived, master)
		if sealErr != nil {
			return fmt.Errorf("vault: 包裹主密钥失败: %w", sealErr)
		}
		if err := atomicWrite(s.keyPath, wrapped); err != nil {
			return fmt.Errorf("vault: 保存主密钥失败: %w", err)
		}
		s.master = master
		s.logger.Info("已初始化新保险库", zap.String("path", s.keyPath))
		return nil
	default:
		return fmt.Errorf("%w: 读取主密钥文件失败: %v", ErrCorruptVault, err)
	}
}

// loadOrCreateSalt 读取既有盐值;仅在整个保险库均不存在时生成新盐。
// 盐缺失但主密钥文件存在属于损坏状态,绝不能悄悄重建一个新保险库。
func (s *Store) loadOrCreateSalt() ([]byte, error) {
	data, err := os.ReadFile(s.saltPath)
	if err == nil {
		if len(data) != saltLength {
			return nil, fmt.Errorf("%w: 盐文件长度异常", ErrCorruptVault)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: 读取盐文件失败: %v", ErrCorruptVault, err)
	}

	if _, statErr := os.Stat(s.keyPath); statErr == nil {
		return nil, fmt.Errorf("%w: 盐文件缺失但主密钥存在", ErrCorruptVault)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vault: 生成盐失败: %w", err)
	}
	if err := atomicWrite(s.saltPath, salt); err != nil {
		return nil, fmt.Errorf("vault: 保存盐失败: %w", err)
	}
	return salt, nil
}

// RotatePassword 用新口令重新包裹主密钥。主密钥本身不变,
// 账户密文无需重新加密,轮换开销与账户数量无关。
func (s *Store) RotatePassword(oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}

	if err := s.Unlock(oldPassword); err != nil {
		return err
	}

	salt, err := os.ReadFile(s.saltPath)
	if err != nil {
		return fmt.Errorf("%w: 读取盐文件失败: %v", ErrCorruptVault, err)
	}
	if len(salt) != saltLength {
		return fmt.Errorf("%w: 盐文件长度异常", ErrCorruptVault)
	}

	derived := deriveKey(newPassword, salt, s.iterations)
	wrapped, err := aeadSeal(derived, s.master)
	if err != nil {
		return fmt.Errorf("vault: 包裹主密钥失败: %w", err)
	}
	if err := atomicWrite(s.keyPath, wrapped); err != nil {
		return fmt.Errorf("vault: 保存主密钥失败: %w", err)
	}

	s.logger.Info("保险库口令已轮换")
	return nil
}

// LoadAccounts 解密账户文件并反序列化到 v。文件缺失或为空视为空注册表;
// 解密失败同样返回空结果,但作为独立状况记录日志,不与"无账户"混同。
func (s *Store) LoadAccounts(v interface{}) error {
	if s.master == nil {
		return ErrLocked
	}

	ciphertext, err := os.ReadFile(s.accountsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vault: 读取账户文件失败: %w", err)
	}
	if len(ciphertext) == 0 {
		return nil
	}

	plaintext, err := aeadOpen(s.master, ciphertext)
	if err != nil {
		s.logger.Error("账户文件解密失败,按空注册表处理,原有数据不可恢复",
			zap.String("path", s.accountsPath),
			zap.Error(err),
		)
		return nil
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		s.logger.Error("账户文件反序列化失败,按空注册表处理",
			zap.String("path", s.accountsPath),
			zap.Error(err),
		)
		return nil
	}

	return nil
}

// SaveAccounts 序列化 v,用主密钥加密后原子写入账户文件。
func (s *Store) SaveAccounts(v interface{}) error {
	if s.master == nil {
		return ErrLocked
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vault: 序列化账户失败: %w", err)
	}

	ciphertext, err := aeadSeal(s.master, plaintext)
	if err != nil {
		return fmt.Errorf("vault: 加密账户失败: %w", err)
	}

	if err := atomicWrite(s.accountsPath, ciphertext); err != nil {
		return fmt.Errorf("vault: 保存账户文件失败: %w", err)
	}

	return nil
}

// atomicWrite 先写同目录临时文件再重命名,避免出现半写状态。
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return err
	}
	if err := os.Chmod(tmp, fileMode); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
