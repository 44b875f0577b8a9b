package main

import "github.com/zhukovaskychina/ycsb-btreedb/cli"

func main() {
	cli.Execute()
}
