// Command chat is an interactive terminal client for the campus QA
// service. It logs in, then reads questions from stdin until the user
// types exit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/pkg/client"
)

const historyWindow = 3

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8000", "QA service base URL")
		username = flag.String("user", "student1", "Username")
		password = flag.String("pass", "password123", "Password")
	)
	flag.Parse()

	ctx := context.Background()
	c := client.New(*baseURL)

	login, err := c.Login(ctx, *username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "登录失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("已登录: %s (%s)\n", login.Username, login.Role)
	fmt.Println("输入问题开始对话，输入 exit 或 退出 结束。")

	var history []models.ChatTurn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "退出" {
			break
		}

		resp, err := c.Ask(ctx, question, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "提问失败: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", resp.Answer)
		fmt.Printf("\n来源: %s", strings.Join(resp.Sources, ", "))
		if resp.FromCache {
			fmt.Print(" [缓存]")
		}
		fmt.Printf(" (%.2fs)\n", resp.ProcessTime)

		history = append(history,
			models.ChatTurn{Role: "user", Content: question},
			models.ChatTurn{Role: "assistant", Content: resp.Answer})
		if len(history) > historyWindow*2 {
			history = history[len(history)-historyWindow*2:]
		}
	}

	if err := c.Logout(ctx); err == nil {
		fmt.Println("已退出登录")
	}
}
