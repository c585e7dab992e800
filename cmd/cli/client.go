// Copyright 2026 civicledger
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("CIVICLEDGER_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// newClient 构造 API 客户端；身份经 CIVICLEDGER_ACTOR / CIVICLEDGER_ROLE 传入
func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if actor := os.Getenv("CIVICLEDGER_ACTOR"); actor != "" {
		c.SetHeader("X-Actor-ID", actor)
	}
	if role := os.Getenv("CIVICLEDGER_ROLE"); role != "" {
		c.SetHeader("X-Actor-Role", role)
	}
	if token := os.Getenv("CIVICLEDGER_TOKEN"); token != "" {
		c.SetHeader("Authorization", "Bearer "+token)
	}
	return c
}

func getJSON(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", path, resp.String())
	}
	return out, nil
}

func postJSON(path string, body interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("POST %s: %s", path, resp.String())
	}
	return out, nil
}

func putJSON(path string, body interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetBody(body).SetResult(&out).Put(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("PUT %s: %s", path, resp.String())
	}
	return out, nil
}

func deleteJSON(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Delete(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("DELETE %s: %s", path, resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// parseAmount 解析最小面额整数金额
func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// formatAmount 千分位显示金额
func formatAmount(units int64) string {
	s := strconv.FormatInt(units, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
