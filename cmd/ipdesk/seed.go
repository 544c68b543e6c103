package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/ipdesk/internal/clock"
	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
)

// Provisioning is not a lifecycle transition, so seeding writes no history.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision rooms, address ranges and companies",
}

var seedRoomCmd = &cobra.Command{
	Use:   "room",
	Short: "Create a room and the addresses it hosts",
	Example: `  ipdesk seed room --number B-204 --range 10.20.4.10-10.20.4.250`,
	RunE: func(cmd *cobra.Command, args []string) error {
		number, _ := cmd.Flags().GetString("number")
		ipRange, _ := cmd.Flags().GetString("range")

		start, end, ok := strings.Cut(ipRange, "-")
		if !ok {
			return fmt.Errorf("--range must look like START-END, got %q", ipRange)
		}

		_, store, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		var (
			room domain.Room
			ips  []domain.IP
		)
		err = store.InTx(cmd.Context(), func(q repository.Queries) error {
			var err error
			if room, err = q.Rooms.Create(cmd.Context(), domain.Room{Number: number}); err != nil {
				return err
			}
			ips, err = q.IPs.CreateRange(cmd.Context(), room.ID, strings.TrimSpace(start), strings.TrimSpace(end), clock.Real().Now())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to seed room %s: %w", number, err)
		}

		fmt.Printf("✓ Room %s (id %d) with %d addresses\n", room.Number, room.ID, len(ips))
		return nil
	},
}

var seedCompanyCmd = &cobra.Command{
	Use:   "company",
	Short: "Create a company housed in an existing room",
	Example: `  ipdesk seed company --name acme --owner alice --room B-204`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		owner, _ := cmd.Flags().GetString("owner")
		roomNumber, _ := cmd.Flags().GetString("room")

		_, store, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		q := store.Queries()
		room, err := q.Rooms.FindByNumber(cmd.Context(), roomNumber)
		if err != nil {
			return err
		}

		company, err := q.Companies.Create(cmd.Context(), domain.Company{Name: name, Owner: owner, RoomID: room.ID})
		if err != nil {
			return fmt.Errorf("failed to seed company %s: %w", name, err)
		}

		fmt.Printf("✓ Company %s (id %d) owned by %s in room %s\n", company.Name, company.ID, company.Owner, room.Number)
		return nil
	},
}

func init() {
	seedRoomCmd.Flags().String("number", "", "Room number")
	seedRoomCmd.Flags().String("range", "", "Inclusive IPv4 range, START-END")
	_ = seedRoomCmd.MarkFlagRequired("number")
	_ = seedRoomCmd.MarkFlagRequired("range")

	seedCompanyCmd.Flags().String("name", "", "Company name")
	seedCompanyCmd.Flags().String("owner", "", "Username of the owning user")
	seedCompanyCmd.Flags().String("room", "", "Number of the room housing the company")
	_ = seedCompanyCmd.MarkFlagRequired("name")
	_ = seedCompanyCmd.MarkFlagRequired("owner")
	_ = seedCompanyCmd.MarkFlagRequired("room")

	seedCmd.AddCommand(seedRoomCmd)
	seedCmd.AddCommand(seedCompanyCmd)
}
