package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/uteqlabs/wabridge/pkg/protocol"
)

var bridgeAddr string

func addAddrFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bridgeAddr, "addr", "", "bridge address (default http://localhost:3001, or WABRIDGE_ADDR)")
}

func resolveAddr() string {
	if bridgeAddr != "" {
		return bridgeAddr
	}
	if v := os.Getenv("WABRIDGE_ADDR"); v != "" {
		return v
	}
	return "http://localhost:3001"
}

func bridgeGet(path string, out interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(resolveAddr() + path)
	if err != nil {
		return fmt.Errorf("is the bridge running? %w", err)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func bridgePost(path string, body, out interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(resolveAddr()+path, "application/json", &buf)
	if err != nil {
		return 0, fmt.Errorf("is the bridge running? %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session state",
		Run: func(cmd *cobra.Command, args []string) {
			var resp protocol.StatusResponse
			if err := bridgeGet("/status", &resp); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println(resp.Status)
		},
	}
	addAddrFlag(cmd)
	return cmd
}

func qrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Render the pending pairing code in the terminal",
		Run: func(cmd *cobra.Command, args []string) {
			var resp protocol.QRResponse
			if err := bridgeGet("/qr", &resp); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if !resp.Success {
				fmt.Println(resp.Message)
				return
			}
			qrterminal.GenerateHalfBlock(resp.Code, qrterminal.L, os.Stdout)
			fmt.Println("Scan with WhatsApp on your phone.")
		},
	}
	addAddrFlag(cmd)
	return cmd
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Close the WhatsApp session and clear credentials",
		Run: func(cmd *cobra.Command, args []string) {
			var resp protocol.LogoutResponse
			if _, err := bridgePost("/logout", nil, &resp); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println(resp.Message)
		},
	}
	addAddrFlag(cmd)
	return cmd
}

func sendCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "send [recipient...]",
		Short: "Send a text message to one or more recipients",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if body == "" {
				fmt.Fprintln(os.Stderr, "Error: --message is required")
				os.Exit(1)
			}

			var resp protocol.DispatchResponse
			status, err := bridgePost("/send", protocol.DispatchRequest{
				Recipients: args,
				Body:       body,
			}, &resp)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if status != http.StatusOK {
				fmt.Fprintf(os.Stderr, "Error: bridge returned %d\n", status)
				os.Exit(1)
			}

			for _, r := range resp.Results {
				if r.Status == protocol.RecipientSent {
					fmt.Printf("%-20s sent  %s\n", r.Recipient, r.MessageID)
				} else {
					fmt.Printf("%-20s failed  %s\n", r.Recipient, r.Reason)
				}
			}
			if !resp.AllSucceeded {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&body, "message", "m", "", "message text")
	addAddrFlag(cmd)
	return cmd
}
