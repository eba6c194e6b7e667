package main

import (
	"context"

	"github.com/ruteri/bkps-admin/api/clients"
	"github.com/urfave/cli/v2"
)

var flagID = &cli.StringFlag{
	Name:     "id",
	Usage:    "resource id",
	Required: true,
}

var flagInput = &cli.StringFlag{
	Name:    "input",
	Aliases: []string{"i"},
	Usage:   "input file or location (file://, s3://, vault://)",
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "save the response to a file or location (file://, s3://, vault://)",
}

func requiredInput() *cli.StringFlag {
	f := *flagInput
	f.Required = true
	return &f
}

// domainCommands returns every service command bound to rt.
func domainCommands(rt *runtime) []*cli.Command {
	return []*cli.Command{
		healthCommand(rt),
		importKeyCommand(rt),
		sealingKeyCommand(rt),
		signingKeyCommand(rt),
		rootSigningKeyCommand(rt),
		importPubKeyCommand(rt),
		configurationCommand(rt),
		prefetchCommand(rt),
		prefetchStatusCommand(rt),
		contextKeyCommand(rt),
		communicationCommand(rt),
		userCommand(rt),
	}
}

func healthCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check service health",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "detailed", Usage: "query the SLA health endpoint"},
		},
		Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
			return rt.client.Health(ctx, cCtx.Bool("detailed"))
		}),
	}
}

func importKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "service-import-key",
		Usage: "manage the service import key",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create the import key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.CreateImportKey(ctx)
				}),
			},
			{
				Name:  "delete",
				Usage: "delete the import key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.DeleteImportKey(ctx)
				}),
			},
		},
	}
}

func sealingKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "sealing-key",
		Usage: "manage sealing keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a sealing key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.CreateSealingKey(ctx)
				}),
			},
			{
				Name:  "rotate",
				Usage: "rotate the sealing key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.RotateSealingKey(ctx)
				}),
			},
			{
				Name:  "list",
				Usage: "list sealing keys",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.ListSealingKeys(ctx)
				}),
			},
			{
				Name:  "backup",
				Usage: "export the sealing key encrypted for an import public key",
				Flags: []cli.Flag{requiredInput(), requiredOutput()},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					pubKey, err := rt.readInput(ctx, cCtx.String(flagInput.Name))
					if err != nil {
						return err
					}
					data, err := rt.client.BackupSealingKey(ctx, pubKey)
					if err != nil {
						return err
					}
					return rt.saveOutput(ctx, cCtx.String(flagOutput.Name), data)
				}),
			},
			{
				Name:  "restore",
				Usage: "restore an encrypted sealing key backup",
				Flags: []cli.Flag{requiredInput()},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					backup, err := rt.readInput(ctx, cCtx.String(flagInput.Name))
					if err != nil {
						return err
					}
					return rt.client.RestoreSealingKey(ctx, backup)
				}),
			},
		},
	}
}

func requiredOutput() *cli.StringFlag {
	f := *flagOutput
	f.Required = true
	return &f
}

func signingKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "signing-key",
		Usage: "manage signing keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a signing key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.CreateSigningKey(ctx)
				}),
			},
			{
				Name:  "list",
				Usage: "list signing keys",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.ListSigningKeys(ctx)
				}),
			},
			{
				Name:  "get",
				Usage: "get a signing key",
				Flags: []cli.Flag{flagID, flagOutput},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					data, err := rt.client.GetSigningKey(ctx, cCtx.String(flagID.Name))
					if err != nil {
						return err
					}
					return rt.saveOutput(ctx, cCtx.String(flagOutput.Name), data)
				}),
			},
			{
				Name:  "upload",
				Usage: "upload signed root chains for a signing key",
				Flags: []cli.Flag{
					flagID,
					&cli.StringFlag{Name: "single", Usage: "single root chain file", Required: true},
					&cli.StringFlag{Name: "multi", Usage: "multi root chain file", Required: true},
				},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.UploadSigningKey(ctx, cCtx.String(flagID.Name), cCtx.String("single"), cCtx.String("multi"))
				}),
			},
			{
				Name:  "activate",
				Usage: "activate a signing key",
				Flags: []cli.Flag{flagID},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.ActivateSigningKey(ctx, cCtx.String(flagID.Name))
				}),
			},
		},
	}
}

func rootSigningKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "root-signing-key",
		Usage: "manage root signing keys",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "add a root signing certificate",
				Flags: []cli.Flag{requiredInput()},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.AddRootSigningKey(ctx, cCtx.String(flagInput.Name))
				}),
			},
		},
	}
}

func importPubKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "service-import-pub-key",
		Usage: "read the service import public key",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "get the import public key",
				Flags: []cli.Flag{flagOutput},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					data, err := rt.client.GetImportPublicKey(ctx)
					if err != nil {
						return err
					}
					return rt.saveOutput(ctx, cCtx.String(flagOutput.Name), data)
				}),
			},
		},
	}
}

func configurationCommand(rt *runtime) *cli.Command {
	sourceFlags := []cli.Flag{
		&cli.BoolFlag{Name: "interactive", Usage: "enter the configuration field by field"},
		&cli.BoolFlag{Name: "json", Usage: "read the configuration from the --input JSON file"},
		flagInput,
	}

	return &cli.Command{
		Name:  "configuration",
		Usage: "manage device configurations",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a configuration",
				Flags: sourceFlags,
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					body, err := rt.buildConfiguration(ctx, cCtx)
					if err != nil || body == nil {
						return err
					}
					return rt.client.CreateConfiguration(ctx, body)
				}),
			},
			{
				Name:  "update",
				Usage: "replace a configuration",
				Flags: append([]cli.Flag{flagID}, sourceFlags...),
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					body, err := rt.buildConfiguration(ctx, cCtx)
					if err != nil || body == nil {
						return err
					}
					return rt.client.UpdateConfiguration(ctx, cCtx.String(flagID.Name), body)
				}),
			},
			{
				Name:  "list",
				Usage: "list configurations",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.ListConfigurations(ctx)
				}),
			},
			{
				Name:  "get",
				Usage: "get a configuration",
				Flags: []cli.Flag{flagID},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					_, err := rt.client.GetConfiguration(ctx, cCtx.String(flagID.Name))
					return err
				}),
			},
			{
				Name:  "delete",
				Usage: "delete a configuration",
				Flags: []cli.Flag{flagID},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.DeleteConfiguration(ctx, cCtx.String(flagID.Name))
				}),
			},
		},
	}
}

func prefetchCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "prefetch",
		Usage: "prefetch attestation data for a device",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "familyId", Usage: "device family id", Required: true},
			&cli.StringFlag{Name: "deviceId", Usage: "device UID, 8 bytes hex", Required: true},
			&cli.StringFlag{Name: "pdi", Usage: "PDI, hex"},
			&cli.StringFlag{Name: "deviceIdErCert", Usage: "device ID enrollment certificate file or PEM"},
		},
		Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
			device := clients.PrefetchDevice{
				FamilyID: cCtx.String("familyId"),
				UID:      cCtx.String("deviceId"),
				PDI:      cCtx.String("pdi"),
			}
			if cert := cCtx.String("deviceIdErCert"); cert != "" {
				resolved, err := clients.ResolveDeviceIDCert(cert)
				if err != nil {
					return err
				}
				device.DeviceIDEr = resolved
			}
			return rt.client.PrefetchDevices(ctx, device)
		}),
	}
}

func prefetchStatusCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "prefetch-status",
		Usage: "show prefetch status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "deviceId", Usage: "device UID"},
			&cli.StringFlag{Name: "familyId", Usage: "device family id"},
		},
		Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
			return rt.client.PrefetchStatus(ctx, cCtx.String("deviceId"), cCtx.String("familyId"))
		}),
	}
}

func contextKeyCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "context-key",
		Usage: "manage the context key",
		Subcommands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "rotate the context key",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.RotateContextKey(ctx)
				}),
			},
		},
	}
}

func communicationCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "communication",
		Usage: "manage trusted communication certificates",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "import a trusted certificate",
				Flags: []cli.Flag{requiredInput()},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					rt.printRebootNotice()
					return rt.client.ImportTrustedCertificate(ctx, cCtx.String(flagInput.Name))
				}),
			},
			{
				Name:  "list",
				Usage: "list trusted certificates",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.ListTrustedCertificates(ctx)
				}),
			},
			{
				Name:  "delete",
				Usage: "delete a trusted certificate by alias",
				Flags: []cli.Flag{&cli.StringFlag{Name: "id", Usage: "certificate alias", Required: true}},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					rt.printRebootNotice()
					return rt.client.DeleteTrustedCertificate(ctx, cCtx.String("id"))
				}),
			},
		},
	}
}

func userCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "manage users",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a user from a certificate",
				Flags: []cli.Flag{requiredInput(), flagOutput},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					rt.printRebootNotice()
					data, err := rt.client.CreateUser(ctx, cCtx.String(flagInput.Name))
					if err != nil {
						return err
					}
					return rt.saveOutput(ctx, cCtx.String(flagOutput.Name), data)
				}),
			},
			{
				Name:  "initial-create",
				Usage: "create the first super admin with the one-time token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "one-time initialization token", Required: true},
					requiredInput(),
					flagOutput,
				},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					rt.printRebootNotice()
					data, err := rt.client.CreateInitialUser(ctx, cCtx.String("token"), cCtx.String(flagInput.Name))
					if err != nil {
						return err
					}
					return rt.saveOutput(ctx, cCtx.String(flagOutput.Name), data)
				}),
			},
			{
				Name:  "list",
				Usage: "list users",
				Action: rt.action(func(ctx context.Context, _ *cli.Context) error {
					return rt.client.ListUsers(ctx)
				}),
			},
			{
				Name:  "role-set",
				Usage: "grant a role",
				Flags: []cli.Flag{flagID, flagRole},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.SetUserRole(ctx, cCtx.String(flagID.Name), cCtx.String(flagRole.Name))
				}),
			},
			{
				Name:  "role-unset",
				Usage: "revoke a role",
				Flags: []cli.Flag{flagID, flagRole},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					return rt.client.UnsetUserRole(ctx, cCtx.String(flagID.Name), cCtx.String(flagRole.Name))
				}),
			},
			{
				Name:  "delete",
				Usage: "delete a user",
				Flags: []cli.Flag{flagID},
				Action: rt.action(func(ctx context.Context, cCtx *cli.Context) error {
					rt.printRebootNotice()
					return rt.client.DeleteUser(ctx, cCtx.String(flagID.Name))
				}),
			},
		},
	}
}

var flagRole = &cli.StringFlag{
	Name:     "role",
	Usage:    "ROLE_SUPER_ADMIN, ROLE_ADMIN, ROLE_PROGRAMMER or ROLE_VIEWER",
	Required: true,
}
