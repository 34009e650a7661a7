package rpcclient_test

import (
	"context"
	"fmt"
	"os"

	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/nspcc-dev/tonlib-go/pkg/transport"
)

func Example() {
	endpoint := "ws://127.0.0.1:8081/tonlib"
	config, err := os.ReadFile("global.config.json")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	params := rpcclient.DefaultConnectionParams()
	params.Config = string(config)

	c, err := rpcclient.New(context.TODO(), rpcclient.Options{
		PoolSize: 2,
		Params:   params,
		Retry:    rpcclient.DefaultRetryStrategy(),
		Check:    rpcclient.CheckHealth,
		Connection: rpcclient.ConnectionOptions{
			Dialer: transport.NewWSDialer(endpoint, transport.WSOptions{}),
		},
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer c.Close()

	info, err := c.GetMasterchainInfo(context.TODO())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(info.Last)

	addr, err := tl.ParseAddress("-1:3333333333333333333333333333333333333333333333333333333333333333")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	st, err := c.RawGetAccountState(context.TODO(), addr)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(st.Balance)
}
