package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenostudy/zeno/internal/domain/adminauth"
)

var hashKeyArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [admin-key]",
	Short: "Hash an admin API key for the config file",
	Long: `Hash an admin API key for use in the admin.key_hashes config field.

The default output format is "sha256:<hex>". Pass --argon2id to get an
argon2id PHC string instead, which resists brute force if the config
file leaks.

Example:
  zeno hash-key "my-secret-admin-key"
  # Output: sha256:7d5e8c...

  zeno hash-key --argon2id "my-secret-admin-key"
  # Output: $argon2id$v=19$...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  zeno hash-key "$MY_ADMIN_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if hashKeyArgon2id {
			hash, err := adminauth.HashKeyArgon2id(key)
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Printf("sha256:%s\n", adminauth.HashKey(key))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon2id, "argon2id", false, "Output an argon2id PHC string instead of a SHA256 digest")
	rootCmd.AddCommand(hashKeyCmd)
}
