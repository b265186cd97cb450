// 签发访问令牌，供运维与联调使用
//
//	go run ./cmd/token -role director -school sch-1 -sub ali
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hissa/hissa/internal/config"
	"github.com/hissa/hissa/internal/security"
)

func main() {
	role := flag.String("role", string(security.RoleDirector), "角色: admin/director/teacher")
	school := flag.String("school", "", "学校ID，非管理员必填")
	sub := flag.String("sub", "cli", "调用方标识")
	ttl := flag.Duration("ttl", 24*time.Hour, "有效期")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if cfg.Auth.JWTSecret == "" {
		fail(fmt.Errorf("未设置 AUTH_JWT_SECRET"))
	}

	p := security.Principal{Subject: *sub, Role: security.Role(*role), SchoolID: *school}
	if !p.Role.Valid() {
		fail(fmt.Errorf("未知角色: %s", *role))
	}
	if !p.IsAdmin() && p.SchoolID == "" {
		fail(fmt.Errorf("非管理员必须指定 -school"))
	}

	token, err := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(p, *ttl)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "签发失败: %v\n", err)
	os.Exit(1)
}
