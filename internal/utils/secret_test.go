package utils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// SecretTestSuite 恢复密钥工具测试套件
type SecretTestSuite struct {
	suite.Suite
}

// 测试哈希格式
func (suite *SecretTestSuite) TestHashSecret() {
	hash, err := HashSecret("resume-secret")
	suite.NoError(err)
	suite.NotEqual("resume-secret", hash)
	suite.True(strings.HasPrefix(hash, "$argon2id$"))
	suite.Contains(hash, "m=65536,t=1,p=4")
}

// 测试相同密钥生成不同哈希
func (suite *SecretTestSuite) TestSalt() {
	hash1, err1 := HashSecret("same")
	hash2, err2 := HashSecret("same")
	suite.NoError(err1)
	suite.NoError(err2)
	suite.NotEqual(hash1, hash2)

	for _, hash := range []string{hash1, hash2} {
		ok, err := VerifySecret("same", hash)
		suite.NoError(err)
		suite.True(ok)
	}
}

// 测试校验
func (suite *SecretTestSuite) TestVerifySecret() {
	hash, _ := HashSecret("Correct456")

	ok, err := VerifySecret("Correct456", hash)
	suite.NoError(err)
	suite.True(ok)

	ok, err = VerifySecret("correct456", hash)
	suite.NoError(err)
	suite.False(ok)
}

// 测试自定义配置
func (suite *SecretTestSuite) TestHashSecretWithConfig() {
	config := &SecretConfig{Time: 2, Memory: 32 * 1024, Threads: 2, KeyLen: 16}
	hash, err := HashSecretWithConfig("custom", config)
	suite.Require().NoError(err)
	suite.Contains(hash, "m=32768,t=2,p=2")

	ok, err := VerifySecret("custom", hash)
	suite.NoError(err)
	suite.True(ok)
}

// 测试无效哈希
func (suite *SecretTestSuite) TestInvalidHash() {
	for _, encoded := range []string{
		"invalid-hash",
		"",
		"$argon2$invalid$format",
		"$bcrypt$v=19$m=1,t=1,p=1$aaaa$bbbb",
		"$argon2id$v=1$m=1,t=1,p=1$aaaa$bbbb",
	} {
		ok, err := VerifySecret("secret", encoded)
		suite.Error(err, encoded)
		suite.False(ok)
	}
}

// 测试生成随机字符串
func (suite *SecretTestSuite) TestGenerateRandomString() {
	for _, length := range []int{8, 16, 32, 64} {
		str, err := GenerateRandomString(length)
		suite.NoError(err)
		suite.Len(str, length)
		for _, char := range str {
			isValid := (char >= 'A' && char <= 'Z') ||
				(char >= 'a' && char <= 'z') ||
				(char >= '0' && char <= '9') ||
				char == '-' || char == '_'
			suite.True(isValid, "字符 %c 不是有效的base64 URL字符", char)
		}
	}
}

// 测试恢复密钥唯一性
func (suite *SecretTestSuite) TestGenerateResumeSecret() {
	generated := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := GenerateResumeSecret()
		suite.NoError(err)
		suite.Len(secret, 32)
		suite.False(generated[secret], "不应该生成重复的密钥")
		generated[secret] = true
	}
}

// 测试并发哈希
func (suite *SecretTestSuite) TestConcurrentHashing() {
	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			secret := fmt.Sprintf("Secret%d", id)
			hash, err := HashSecret(secret)
			suite.NoError(err)
			ok, err := VerifySecret(secret, hash)
			suite.NoError(err)
			suite.True(ok)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestSecretSuite(t *testing.T) {
	suite.Run(t, new(SecretTestSuite))
}
