package main

import (
	"fmt"
	"os"
	"os/exec"

	"civicledger/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("civicledger cli 0.1.0")
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runProcess("./cmd/api")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: civicledger server start\n")
			os.Exit(1)
		}
	case "worker":
		if len(args) > 0 && args[0] == "start" {
			runProcess("./cmd/worker")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: civicledger worker start\n")
			os.Exit(1)
		}
	case "status":
		runStatus()
	case "projects":
		runProjects()
	case "project":
		runProject(args)
	case "expenditure":
		runExpenditure(args)
	case "complaint":
		runComplaint(args)
	case "verify":
		runVerify(args)
	case "register-address":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: civicledger register-address <0x...>\n")
			os.Exit(1)
		}
		mustPrint(postJSON("/api/ledger/register-address", map[string]string{"address": args[0]}))
	case "officials":
		runOfficials(args)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: civicledger <command> [args]")
	fmt.Println("  version                                 - 显示版本")
	fmt.Println("  config                                  - 显示配置概要")
	fmt.Println("  status                                  - 账本状态与记录统计")
	fmt.Println("  server start                            - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  worker start                            - 启动同步 Worker（go run ./cmd/worker）")
	fmt.Println("  projects                                - 列出项目")
	fmt.Println("  project get <id>                        - 项目详情")
	fmt.Println("  project create <name> <budget> [ward]   - 创建项目")
	fmt.Println("  project budget <id> <budget>            - 修订项目预算")
	fmt.Println("  expenditure add <project_id> <amount> <category> [desc] - 记录支出")
	fmt.Println("  expenditure approve <id> <amount>       - 批准支出")
	fmt.Println("  expenditure revoke <id>                 - 撤销批准")
	fmt.Println("  complaint submit <project_id> <title> [desc] - 提交投诉")
	fmt.Println("  complaint resolve <id> <response>       - 解决投诉")
	fmt.Println("  complaint reject <id> <reason>          - 驳回投诉")
	fmt.Println("  verify <project|expenditure|complaint> <id> - 对照账本核验记录")
	fmt.Println("  register-address <0x...>                - 登记操作者账本地址")
	fmt.Println("  officials add <0x...> [admin]           - 授权账本写入身份")
	fmt.Println("  officials remove <0x...>                - 撤销账本写入身份")
	fmt.Println("身份经环境变量传入：CIVICLEDGER_ACTOR / CIVICLEDGER_ROLE（或 CIVICLEDGER_TOKEN）")
}

func runConfig() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("api.host=%s\n", cfg.API.Host)
	fmt.Printf("api.port=%d\n", cfg.API.Port)
	fmt.Printf("storage.record.type=%s\n", cfg.Storage.Record.Type)
	fmt.Printf("ledger.enabled=%t\n", cfg.Ledger.Enabled)
	fmt.Printf("ledger.type=%s\n", cfg.Ledger.Type)
}

func runProcess(pkg string) {
	c := exec.Command("go", "run", pkg)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", pkg, err)
		os.Exit(1)
	}
}

func runStatus() {
	out, err := getJSON("/api/ledger/status")
	if err != nil {
		fail(err)
	}
	fmt.Println(prettyJSON(out))
}

func runProjects() {
	out, err := getJSON("/api/projects")
	if err != nil {
		fail(err)
	}
	fmt.Println(prettyJSON(out))
}

func runProject(args []string) {
	if len(args) < 1 {
		fail(fmt.Errorf("Usage: civicledger project <get|create|budget> ..."))
	}
	switch args[0] {
	case "get":
		if len(args) < 2 {
			fail(fmt.Errorf("Usage: civicledger project get <id>"))
		}
		mustPrint(getJSON("/api/projects/" + args[1]))
	case "create":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger project create <name> <budget> [ward]"))
		}
		budget, err := parseAmount(args[2])
		if err != nil {
			fail(err)
		}
		body := map[string]interface{}{"name": args[1], "budget": budget}
		if len(args) > 3 {
			body["ward"] = args[3]
		}
		out, err := postJSON("/api/projects", body)
		if err != nil {
			fail(err)
		}
		fmt.Printf("created project %v (budget %s)\n", out["id"], formatAmount(budget))
	case "budget":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger project budget <id> <budget>"))
		}
		budget, err := parseAmount(args[2])
		if err != nil {
			fail(err)
		}
		mustPrint(putJSON("/api/projects/"+args[1]+"/budget", map[string]int64{"budget": budget}))
	default:
		fail(fmt.Errorf("unknown project subcommand %q", args[0]))
	}
}

func runExpenditure(args []string) {
	if len(args) < 1 {
		fail(fmt.Errorf("Usage: civicledger expenditure <add|approve|revoke> ..."))
	}
	switch args[0] {
	case "add":
		if len(args) < 4 {
			fail(fmt.Errorf("Usage: civicledger expenditure add <project_id> <amount> <category> [desc]"))
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			fail(err)
		}
		body := map[string]interface{}{
			"project_id": args[1],
			"amount":     amount,
			"category":   args[3],
		}
		if len(args) > 4 {
			body["description"] = args[4]
		}
		mustPrint(postJSON("/api/expenditures", body))
	case "approve":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger expenditure approve <id> <amount>"))
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			fail(err)
		}
		mustPrint(postJSON("/api/expenditures/"+args[1]+"/approve", map[string]int64{"amount": amount}))
	case "revoke":
		if len(args) < 2 {
			fail(fmt.Errorf("Usage: civicledger expenditure revoke <id>"))
		}
		mustPrint(postJSON("/api/expenditures/"+args[1]+"/revoke", map[string]string{}))
	default:
		fail(fmt.Errorf("unknown expenditure subcommand %q", args[0]))
	}
}

func runComplaint(args []string) {
	if len(args) < 1 {
		fail(fmt.Errorf("Usage: civicledger complaint <submit|resolve|reject> ..."))
	}
	switch args[0] {
	case "submit":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger complaint submit <project_id> <title> [desc]"))
		}
		body := map[string]interface{}{"project_id": args[1], "title": args[2]}
		if len(args) > 3 {
			body["description"] = args[3]
		}
		mustPrint(postJSON("/api/complaints", body))
	case "resolve":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger complaint resolve <id> <response>"))
		}
		mustPrint(postJSON("/api/complaints/"+args[1]+"/resolve", map[string]string{"response": args[2]}))
	case "reject":
		if len(args) < 3 {
			fail(fmt.Errorf("Usage: civicledger complaint reject <id> <reason>"))
		}
		mustPrint(postJSON("/api/complaints/"+args[1]+"/reject", map[string]string{"reason": args[2]}))
	default:
		fail(fmt.Errorf("unknown complaint subcommand %q", args[0]))
	}
}

func runVerify(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("Usage: civicledger verify <project|expenditure|complaint> <id>"))
	}
	switch args[0] {
	case "project", "expenditure", "complaint":
	default:
		fail(fmt.Errorf("unknown record type %q", args[0]))
	}
	out, err := postJSON("/api/ledger/verify/"+args[0]+"/"+args[1], map[string]string{})
	if err != nil {
		fail(err)
	}
	fmt.Println(prettyJSON(out))
	if v, ok := out["verified"].(bool); ok && !v {
		os.Exit(2)
	}
}

func runOfficials(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("Usage: civicledger officials <add|remove> <0x...>"))
	}
	switch args[0] {
	case "add":
		admin := len(args) > 2 && args[2] == "admin"
		mustPrint(postJSON("/api/ledger/officials", map[string]interface{}{"address": args[1], "admin": admin}))
	case "remove":
		mustPrint(deleteJSON("/api/ledger/officials/" + args[1]))
	default:
		fail(fmt.Errorf("unknown officials subcommand %q", args[0]))
	}
}

func mustPrint(out map[string]interface{}, err error) {
	if err != nil {
		fail(err)
	}
	fmt.Println(prettyJSON(out))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
